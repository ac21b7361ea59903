package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethpandaops/reportoor/pkg/api/storage"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/go-chi/chi/v5"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// writeReport validates raw report bytes before passing them through.
func (s *server) writeReport(w http.ResponseWriter, data []byte) {
	r, err := report.Decode(data)
	if err != nil {
		s.log.WithError(err).Warn("Stored report is invalid")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"stored report is invalid"})

		return
	}

	writeJSON(w, http.StatusOK, r)
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type snapshotEntry struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// handleListReports returns the snapshot names, newest first.
func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	names, err := s.reader.ListSnapshots(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing reports: " + err.Error()})

		return
	}

	entries := make([]snapshotEntry, 0, len(names))

	for _, name := range names {
		label, _ := store.MatchSnapshot(name)

		ts, err := store.ParseTimestamp(label, s.opts.Location)
		if err != nil {
			s.log.WithError(err).WithField("snapshot", name).Debug("Skipping snapshot")

			continue
		}

		entries = append(entries, snapshotEntry{Name: name, Timestamp: ts})
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": entries})
}

// handleLatestReport returns the report behind the latest alias.
func (s *server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	data, err := s.reader.GetLatest(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"reading latest report: " + err.Error()})

		return
	}

	if data == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{store.ErrLatestReportAbsent.Error()})

		return
	}

	s.writeReport(w, data)
}

// handleGetReport returns a single snapshot.
func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	data, err := s.reader.GetSnapshot(r.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidSnapshotName) {
			writeJSON(w, http.StatusBadRequest, errorResponse{err.Error()})

			return
		}

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"reading report: " + err.Error()})

		return
	}

	if data == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{"report not found"})

		return
	}

	s.writeReport(w, data)
}

// handleFailures returns the locations the failure selector would re-run.
func (s *server) handleFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := s.selector.Select(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrLatestReportAbsent) {
			writeJSON(w, http.StatusNotFound, errorResponse{err.Error()})

			return
		}

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"selecting failures: " + err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"failures": failures})
}

// handleArchiveRequest serves a file from an archived report folder, either
// directly from disk or through a presigned S3 URL.
func (s *server) handleArchiveRequest(w http.ResponseWriter, r *http.Request) {
	filePath := chi.URLParam(r, "*")
	if filePath == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"file path is required"})

		return
	}

	if s.localServer != nil {
		if err := s.localServer.ServeFile(w, r, filePath); err != nil {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"file not found"})
		}

		return
	}

	url, err := s.presigner.GeneratePresignedURL(r.Context(), filePath)
	if err != nil {
		s.log.WithError(err).
			WithField("path", filePath).
			Warn("Failed to generate presigned URL")

		writeJSON(w, http.StatusForbidden,
			errorResponse{"path not allowed or presign failed"})

		return
	}

	// When redirect=true, issue a 302 redirect to the presigned URL so
	// links and curl -L download the file directly.
	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, url, http.StatusFound)

		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
