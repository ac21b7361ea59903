package api

import (
	"net/http"
	"strconv"

	"github.com/ethpandaops/reportoor/pkg/api/indexstore"
	"github.com/go-chi/chi/v5"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type runResponse struct {
	Snapshot     string `json:"snapshot"`
	StartedAt    int64  `json:"startedAt"`
	DurationInMs int64  `json:"durationInMs"`
	Status       string `json:"status"`
	Tests        struct {
		Total      int `json:"total"`
		Expected   int `json:"expected"`
		Unexpected int `json:"unexpected"`
		Flaky      int `json:"flaky"`
		Skipped    int `json:"skipped"`
	} `json:"tests"`
}

type testHistoryEntry struct {
	Snapshot     string  `json:"snapshot"`
	StartedAt    int64   `json:"startedAt"`
	Outcome      string  `json:"outcome"`
	DurationInMs float64 `json:"durationInMs"`
	Location     string  `json:"location"`
	Title        string  `json:"title"`
}

// parseLimit reads ?limit=, clamped to maxHistoryLimit.
func parseLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, false
	}

	return min(n, maxHistoryLimit), true
}

// handleListRuns returns indexed runs, newest first.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid limit"})

		return
	}

	runs, err := s.indexStore.ListRuns(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing runs: " + err.Error()})

		return
	}

	entries := make([]runResponse, 0, len(runs))
	for i := range runs {
		entries = append(entries, toRunResponse(&runs[i]))
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": entries})
}

// handleTestHistory returns the outcomes of one test across runs.
func (s *server) handleTestHistory(w http.ResponseWriter, r *http.Request) {
	testID := chi.URLParam(r, "id")

	limit, ok := parseLimit(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid limit"})

		return
	}

	results, err := s.indexStore.ListTestHistory(r.Context(), testID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing test history: " + err.Error()})

		return
	}

	entries := make([]testHistoryEntry, 0, len(results))

	for _, res := range results {
		entries = append(entries, testHistoryEntry{
			Snapshot:     res.Snapshot,
			StartedAt:    res.StartedAt,
			Outcome:      res.Outcome,
			DurationInMs: res.DurationMs,
			Location:     res.Location,
			Title:        res.Title,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      testID,
		"history": entries,
	})
}

func toRunResponse(run *indexstore.Run) runResponse {
	resp := runResponse{
		Snapshot:     run.Snapshot,
		StartedAt:    run.StartedAt,
		DurationInMs: run.DurationMs,
		Status:       run.Status,
	}

	resp.Tests.Total = run.TestsTotal
	resp.Tests.Expected = run.TestsExpected
	resp.Tests.Unexpected = run.TestsUnexpected
	resp.Tests.Flaky = run.TestsFlaky
	resp.Tests.Skipped = run.TestsSkipped

	return resp
}
