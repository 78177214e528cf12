package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	s := NewStore(logrus.New(), &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "results.db")},
	})

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func testResult(start time.Time, failed bool) *benchmark.BenchmarkResult {
	b := &benchmark.Benchmark{
		Name:        "tpch",
		UniqueName:  "tpch_schema=sf1",
		Environment: "ci",
		SequenceID:  "1",
		DataSource:  "trino",
		Runs:        2,
		Concurrency: 1,
		Queries:     []*benchmark.Query{{Name: "q1", Statement: "SELECT 1"}},
		Variables:   map[string]string{"schema": "sf1"},
	}

	var execErr error
	if failed {
		execErr = errors.New("query failed")
	}

	executions := []*benchmark.ExecutionResult{
		benchmark.NewExecutionResult(
			&benchmark.Execution{Benchmark: b, Query: b.Queries[0], SequenceID: 2},
			start, start.Add(20*time.Millisecond), 5, execErr,
		),
		benchmark.NewExecutionResult(
			&benchmark.Execution{Benchmark: b, Query: b.Queries[0], SequenceID: 1},
			start, start.Add(10*time.Millisecond), 5, nil,
		),
	}

	return benchmark.NewBenchmarkResult(b, start, start.Add(time.Second), executions)
}

func TestStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	run := NewBenchmarkRun(testResult(start, false), []benchmark.Measurement{
		{Name: "duration", Unit: benchmark.UnitMilliseconds, Value: 1000},
	})
	require.NoError(t, s.SaveBenchmarkRun(ctx, run))
	require.NotZero(t, run.ID)

	got, err := s.GetBenchmarkRun(ctx, run.RunID)
	require.NoError(t, err)

	assert.Equal(t, "tpch_schema=sf1", got.UniqueName)
	assert.Equal(t, StatusSuccess, got.Status)
	assert.Equal(t, map[string]string{"schema": "sf1"}, got.Variables)
	require.Len(t, got.Executions, 2)
	assert.Equal(t, 1, got.Executions[0].SequenceID)
	assert.Equal(t, 2, got.Executions[1].SequenceID)
	assert.InDelta(t, 10, got.Executions[0].DurationMs, 0.001)
	require.Len(t, got.Measurements, 1)
	assert.Equal(t, "duration", got.Measurements[0].Name)

	_, err = s.GetBenchmarkRun(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListBenchmarkRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 3 {
		run := NewBenchmarkRun(testResult(base.Add(time.Duration(i)*time.Hour), i == 2), nil)
		require.NoError(t, s.SaveBenchmarkRun(ctx, run))
	}

	tests := []struct {
		name     string
		opts     ListOptions
		expected int
	}{
		{name: "all", opts: ListOptions{}, expected: 3},
		{name: "by name", opts: ListOptions{Name: "tpch"}, expected: 3},
		{name: "unknown name", opts: ListOptions{Name: "tpcds"}, expected: 0},
		{name: "failed only", opts: ListOptions{Status: StatusFailed}, expected: 1},
		{name: "limited", opts: ListOptions{Limit: 2}, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := s.ListBenchmarkRuns(ctx, tt.opts)
			require.NoError(t, err)
			assert.Len(t, runs, tt.expected)
		})
	}

	runs, err := s.ListBenchmarkRuns(ctx, ListOptions{})
	require.NoError(t, err)
	assert.True(t, runs[0].StartedAt.After(runs[1].StartedAt))
}

func TestStore_LastSuccessfulRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	_, ok, err := s.LastSuccessfulRun(ctx, "tpch_schema=sf1", "ci")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveBenchmarkRun(ctx, NewBenchmarkRun(testResult(base, false), nil)))
	require.NoError(t, s.SaveBenchmarkRun(ctx, NewBenchmarkRun(testResult(base.Add(time.Hour), true), nil)))

	last, ok, err := s.LastSuccessfulRun(ctx, "tpch_schema=sf1", "ci")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, base.Equal(last))

	_, ok, err = s.LastSuccessfulRun(ctx, "tpch_schema=sf1", "prod")
	require.NoError(t, err)
	assert.False(t, ok)
}
