package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			if s.cfg.Auth.Basic.Enabled {
				r.Use(s.requireBasicAuth)
			}

			if s.limiters != nil {
				r.Use(s.rateLimitMiddleware)
			}

			r.Get("/reports", s.handleListReports)
			r.Get("/reports/latest", s.handleLatestReport)
			r.Get("/reports/{name}", s.handleGetReport)
			r.Get("/failures", s.handleFailures)

			if s.localServer != nil || s.presigner != nil {
				r.Get("/archives/*", s.handleArchiveRequest)
				r.Head("/archives/*", s.handleArchiveRequest)
			}

			// History endpoints (when indexing is enabled).
			if s.indexStore != nil {
				r.Route("/history", func(r chi.Router) {
					r.Get("/runs", s.handleListRuns)
					r.Get("/tests/{id}", s.handleTestHistory)
				})
			}
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
