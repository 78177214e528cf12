package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/ethpandaops/queryoor/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st := store.NewStore(logrus.New(), &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "results.db")},
	})
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	return st
}

func saveRun(t *testing.T, st store.Store, name string, successful bool) *store.BenchmarkRun {
	t.Helper()

	b := &benchmark.Benchmark{
		Name:        name,
		UniqueName:  name,
		SequenceID:  "1",
		DataSource:  "trino",
		Runs:        1,
		Concurrency: 1,
		Queries:     []*benchmark.Query{{Name: "q1"}},
	}
	now := time.Now()

	var err error
	if !successful {
		err = assert.AnError
	}

	result := benchmark.NewBenchmarkResult(b, now, now.Add(time.Second), []*benchmark.ExecutionResult{
		benchmark.NewExecutionResult(&benchmark.Execution{Benchmark: b, Query: b.Queries[0], SequenceID: 1},
			now, now.Add(time.Second), 10, err),
	})

	run := store.NewBenchmarkRun(result, benchmark.ResultMeasurements(result))
	require.NoError(t, st.SaveBenchmarkRun(context.Background(), run))

	return run
}

func newTestServer(t *testing.T, cfg *config.APIConfig, st store.Store, gatherer prometheus.Gatherer) *server {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	s, _ := NewServer(log, cfg, st, gatherer).(*server)
	t.Cleanup(func() { close(s.done) })

	return s
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &config.APIConfig{}, newTestStore(t), nil)

	rec := get(t, s.buildRouter(), "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleListRuns(t *testing.T) {
	st := newTestStore(t)
	saveRun(t, st, "tpch", true)
	saveRun(t, st, "tpch", false)
	saveRun(t, st, "tpcds", true)

	router := newTestServer(t, &config.APIConfig{}, st, nil).buildRouter()

	tests := []struct {
		name     string
		path     string
		status   int
		expected int
	}{
		{name: "all runs", path: "/api/v1/runs", status: http.StatusOK, expected: 3},
		{name: "by name", path: "/api/v1/runs?name=tpch", status: http.StatusOK, expected: 2},
		{name: "by status", path: "/api/v1/runs?status=failed", status: http.StatusOK, expected: 1},
		{name: "limit", path: "/api/v1/runs?limit=1", status: http.StatusOK, expected: 1},
		{name: "offset past the end", path: "/api/v1/runs?offset=10", status: http.StatusOK, expected: 0},
		{name: "invalid limit", path: "/api/v1/runs?limit=abc", status: http.StatusBadRequest},
		{name: "limit too large", path: "/api/v1/runs?limit=5000", status: http.StatusBadRequest},
		{name: "negative offset", path: "/api/v1/runs?offset=-1", status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, router, tt.path)
			require.Equal(t, tt.status, rec.Code)

			if tt.status != http.StatusOK {
				return
			}

			var resp listRunsResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Len(t, resp.Runs, tt.expected)
		})
	}
}

func TestHandleGetRun(t *testing.T) {
	st := newTestStore(t)
	run := saveRun(t, st, "tpch", true)

	router := newTestServer(t, &config.APIConfig{}, st, nil).buildRouter()

	rec := get(t, router, "/api/v1/runs/"+run.RunID)
	require.Equal(t, http.StatusOK, rec.Code)

	var got store.BenchmarkRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, run.RunID, got.RunID)
	assert.Equal(t, store.StatusSuccess, got.Status)
	require.Len(t, got.Executions, 1)
	assert.Equal(t, int64(10), got.Executions[0].RowsCount)
	assert.NotEmpty(t, got.Measurements)

	rec = get(t, router, "/api/v1/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := &config.APIConfig{
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2},
	}
	router := newTestServer(t, cfg, newTestStore(t), nil).buildRouter()

	assert.Equal(t, http.StatusOK, get(t, router, "/api/v1/runs").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/api/v1/runs").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, router, "/api/v1/runs").Code)

	// Health checks are not rate limited.
	assert.Equal(t, http.StatusOK, get(t, router, "/api/v1/health").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "queryoor_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router := newTestServer(t, &config.APIConfig{}, newTestStore(t), reg).buildRouter()

	rec := get(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "queryoor_test_total 1")

	router = newTestServer(t, &config.APIConfig{}, newTestStore(t), nil).buildRouter()
	assert.Equal(t, http.StatusNotFound, get(t, router, "/metrics").Code)
}

func TestExtractIP(t *testing.T) {
	tests := []struct {
		name     string
		xff      string
		remote   string
		expected string
	}{
		{name: "remote addr", remote: "10.0.0.1:1234", expected: "10.0.0.1"},
		{name: "forwarded chain", xff: "1.2.3.4, 10.0.0.1", remote: "10.0.0.1:1234", expected: "1.2.3.4"},
		{name: "remote without port", remote: "10.0.0.2", expected: "10.0.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote

			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}

			assert.Equal(t, tt.expected, extractIP(req))
		})
	}
}
