package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ethpandaops/reportoor/pkg/api/indexer"
	"github.com/ethpandaops/reportoor/pkg/api/indexstore"
	"github.com/ethpandaops/reportoor/pkg/api/storage"
	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/store"
)

type testEnv struct {
	srv    *server
	st     store.Store
	folder string
}

func newTestEnv(t *testing.T, cfg *config.APIConfig) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	folder := t.TempDir()
	st := store.New(log, &store.Config{Location: time.UTC})

	if cfg == nil {
		cfg = &config.APIConfig{}
	}

	srv := newServer(log, Options{
		Config:   cfg,
		Reader:   storage.NewLocalReader(st, folder),
		Location: time.UTC,
	})

	return &testEnv{srv: srv, st: st, folder: folder}
}

func (e *testEnv) publish(t *testing.T, start time.Time, results ...report.Result) {
	t.Helper()

	r := report.Build(report.RunMeta{StartedAt: start, Duration: time.Second, Status: report.StatusFailed}, results)
	require.NoError(t, e.st.Persist(r, e.folder, store.DefaultFilename))

	_, err := e.st.Snapshot(e.folder)
	require.NoError(t, err)

	_, err = e.st.LinkLatest(e.folder)
	require.NoError(t, err)
}

func (e *testEnv) get(t *testing.T, path string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.0.2.1:1234"

	for _, m := range mutate {
		m(req)
	}

	rec := httptest.NewRecorder()
	e.srv.buildRouter().ServeHTTP(rec, req)

	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.get(t, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReportEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("latest absent", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/reports/latest").Code)
		assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/failures").Code)
	})

	env.publish(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		report.Result{ID: "a", Location: "a.spec.ts:1:1", Outcome: report.OutcomeExpected},
	)
	env.publish(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		report.Result{ID: "a", Location: "a.spec.ts:1:1", Outcome: report.OutcomeUnexpected},
		report.Result{ID: "b", Location: "b.spec.ts:2:2", Outcome: report.OutcomeFlaky},
	)

	t.Run("list", func(t *testing.T) {
		rec := env.get(t, "/api/v1/reports")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Reports []snapshotEntry `json:"reports"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Len(t, body.Reports, 2)
		assert.Equal(t, "report-2024-02-01T00-00-00.json", body.Reports[0].Name)
		assert.True(t, body.Reports[0].Timestamp.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	})

	t.Run("latest", func(t *testing.T) {
		rec := env.get(t, "/api/v1/reports/latest")
		require.Equal(t, http.StatusOK, rec.Code)

		r, err := report.Decode(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Len(t, r.Results, 2)
	})

	t.Run("by name", func(t *testing.T) {
		rec := env.get(t, "/api/v1/reports/report-2024-01-01T00-00-00.json")
		require.Equal(t, http.StatusOK, rec.Code)

		r, err := report.Decode(rec.Body.Bytes())
		require.NoError(t, err)
		assert.Len(t, r.Results, 1)

		assert.Equal(t, http.StatusNotFound,
			env.get(t, "/api/v1/reports/report-2020-01-01T00-00-00.json").Code)
		assert.Equal(t, http.StatusBadRequest,
			env.get(t, "/api/v1/reports/latest.json").Code)
	})

	t.Run("failures", func(t *testing.T) {
		rec := env.get(t, "/api/v1/failures")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"failures":["a.spec.ts:1:1"]}`, rec.Body.String())
	})
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	db := indexstore.NewStore(log, &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, db.Start(context.Background()))
	t.Cleanup(func() { _ = db.Stop() })

	env.srv.indexStore = db

	env.publish(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		report.Result{ID: "a", Location: "a.spec.ts:1:1", Outcome: report.OutcomeExpected},
	)
	env.publish(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		report.Result{ID: "a", Location: "a.spec.ts:1:1", Outcome: report.OutcomeUnexpected},
	)

	idx := indexer.NewIndexer(log, db, env.srv.reader, time.Minute, 1)
	_, err := idx.RunOnce(context.Background())
	require.NoError(t, err)

	rec := env.get(t, "/api/v1/history/runs?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var runs struct {
		Runs []runResponse `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs.Runs, 1)
	assert.Equal(t, "report-2024-02-01T00-00-00.json", runs.Runs[0].Snapshot)
	assert.Equal(t, 1, runs.Runs[0].Tests.Unexpected)

	rec = env.get(t, "/api/v1/history/tests/a")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "a", body["id"])
	assert.Len(t, body["history"], 2)

	assert.Equal(t, http.StatusBadRequest, env.get(t, "/api/v1/history/runs?limit=abc").Code)
}

func TestHistoryEndpointsDisabled(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/v1/history/runs").Code)
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	env := newTestEnv(t, &config.APIConfig{
		Auth: config.APIAuthConfig{Basic: config.BasicAuthConfig{
			Enabled: true,
			Users:   []config.BasicAuthUser{{Username: "ci", PasswordHash: string(hash)}},
		}},
	})

	tests := []struct {
		name     string
		user     string
		password string
		setAuth  bool
		want     int
	}{
		{name: "no credentials", want: http.StatusUnauthorized},
		{name: "wrong password", user: "ci", password: "nope", setAuth: true, want: http.StatusUnauthorized},
		{name: "unknown user", user: "bob", password: "s3cret", setAuth: true, want: http.StatusUnauthorized},
		{name: "valid", user: "ci", password: "s3cret", setAuth: true, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.get(t, "/api/v1/reports/latest", func(r *http.Request) {
				if tt.setAuth {
					r.SetBasicAuth(tt.user, tt.password)
				}
			})
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	// Health stays public.
	assert.Equal(t, http.StatusOK, env.get(t, "/api/v1/health").Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, &config.APIConfig{
		Server: config.APIServerConfig{RateLimit: config.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 1,
		}},
	})

	handler := env.srv.buildRouter()

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil)
		req.RemoteAddr = ip + ":1234"

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("192.0.2.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("192.0.2.1"))
	assert.Equal(t, http.StatusOK, do("192.0.2.2"))
}

func TestArchiveEndpoint(t *testing.T) {
	root := t.TempDir()
	archive := filepath.Join(root, "report-2024-06-01T12-30-00")
	require.NoError(t, os.MkdirAll(archive, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(archive, "trace.html"), []byte("<html></html>"), 0o644))

	env := newTestEnv(t, &config.APIConfig{
		Archives: config.APIArchivesConfig{Enabled: true},
	})
	env.srv.opts.ArchiveRoot = root
	require.NoError(t, env.srv.prepareArchives())

	rec := env.get(t, "/api/v1/archives/report-2024-06-01T12-30-00/trace.html")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html></html>", rec.Body.String())

	assert.Equal(t, http.StatusNotFound,
		env.get(t, "/api/v1/archives/report-2024-06-01T12-30-00/missing.html").Code)
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5555"
	assert.Equal(t, "198.51.100.7", extractIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", extractIP(req))
}
