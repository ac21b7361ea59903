package api

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/reportoor/pkg/api/storage"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/store"
)

func TestClientLimiters_Prune(t *testing.T) {
	l := newClientLimiters(60)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.allow("192.0.2.1", now))
	assert.True(t, l.allow("192.0.2.2", now.Add(limiterIdleTTL)))
	require.Equal(t, 2, l.size())

	assert.Equal(t, 1, l.prune(now.Add(limiterIdleTTL+time.Second)))
	assert.Equal(t, 1, l.size())
}

func TestClientLimiters_StopWithoutStart(t *testing.T) {
	l := newClientLimiters(60)

	l.stop()
	l.stop()
}

func TestServerStopEndsLimiterLoop(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	folder := t.TempDir()

	srv := newServer(log, Options{
		Config: &config.APIConfig{
			Server: config.APIServerConfig{
				Listen: "127.0.0.1:0",
				RateLimit: config.RateLimitConfig{
					Enabled:           true,
					RequestsPerMinute: 10,
				},
			},
		},
		Reader: storage.NewLocalReader(store.New(log, nil), folder),
	})

	require.NoError(t, srv.Start(context.Background()))
	require.NoError(t, srv.Stop())

	select {
	case <-srv.limiters.done:
	case <-time.After(time.Second):
		t.Fatal("limiter loop still running after Stop")
	}
}
