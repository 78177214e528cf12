package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethpandaops/queryoor/pkg/store"
	"github.com/go-chi/chi/v5"
)

const maxListLimit = 1000

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// listRunsResponse is the payload of the run listing.
type listRunsResponse struct {
	Runs   []store.BenchmarkRun `json:"runs"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListRuns returns benchmark runs newest first. Supports the name,
// status, limit and offset query parameters.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	opts := store.ListOptions{
		Name:   query.Get("name"),
		Status: strings.ToUpper(query.Get("status")),
	}

	var err error

	if opts.Limit, err = intParam(query.Get("limit"), 100); err != nil || opts.Limit > maxListLimit {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid limit"})

		return
	}

	if opts.Offset, err = intParam(query.Get("offset"), 0); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{"invalid offset"})

		return
	}

	runs, err := s.store.ListBenchmarkRuns(r.Context(), opts)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})

		return
	}

	if runs == nil {
		runs = []store.BenchmarkRun{}
	}

	writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// handleGetRun returns one run with its executions and measurements.
func (s *server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetBenchmarkRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{"run not found"})

			return
		}

		s.log.WithError(err).Error("Failed to get run")
		writeJSON(w, http.StatusInternalServerError, errorResponse{"internal error"})

		return
	}

	writeJSON(w, http.StatusOK, run)
}

// intParam parses a non-negative integer query parameter.
func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}

	if v < 0 {
		return 0, errors.New("negative value")
	}

	return v, nil
}
