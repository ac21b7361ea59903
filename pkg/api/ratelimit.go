package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterPruneInterval = 5 * time.Minute
	limiterIdleTTL       = 10 * time.Minute
)

type clientLimiter struct {
	bucket   *rate.Limiter
	lastSeen time.Time
}

// clientLimiters hands out one token bucket per client IP. Buckets idle for
// longer than limiterIdleTTL are pruned by the loop started with start.
type clientLimiters struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	started bool

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newClientLimiters(requestsPerMinute int) *clientLimiters {
	return &clientLimiters{
		clients: make(map[string]*clientLimiter, 64),
		limit:   rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:   requestsPerMinute,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// allow consumes a token from the bucket of ip.
func (l *clientLimiters) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &clientLimiter{bucket: rate.NewLimiter(l.limit, l.burst)}
		l.clients[ip] = c
	}

	c.lastSeen = now

	return c.bucket.AllowN(now, 1)
}

// prune drops buckets not used since now - limiterIdleTTL.
func (l *clientLimiters) prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0

	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdleTTL {
			delete(l.clients, ip)

			removed++
		}
	}

	return removed
}

func (l *clientLimiters) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.clients)
}

// start launches the prune loop. It runs until stop is called.
func (l *clientLimiters) start() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return
	}

	l.started = true

	go l.run()
}

func (l *clientLimiters) run() {
	defer close(l.done)

	ticker := time.NewTicker(limiterPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case now := <-ticker.C:
			l.prune(now)
		}
	}
}

// stop ends the prune loop and waits for it to exit.
func (l *clientLimiters) stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })

	l.mu.Lock()
	started := l.started
	l.mu.Unlock()

	if started {
		<-l.done
	}
}

// rateLimitMiddleware rejects requests from clients that exhausted their
// per-minute budget.
func (s *server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiters.allow(extractIP(r), time.Now()) {
			writeJSON(w, http.StatusTooManyRequests,
				errorResponse{"rate limit exceeded"})

			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractIP returns the client's IP address, preferring the first
// X-Forwarded-For hop.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")

		return strings.TrimSpace(first)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return ip
}
