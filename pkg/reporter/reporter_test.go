package reporter

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/ethpandaops/queryoor/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingListener records every event it receives.
type recordingListener struct {
	NopListener

	name  string
	mu    sync.Mutex
	seen  []string
	err   error
	block chan struct{}
}

func (l *recordingListener) Name() string {
	return l.name
}

func (l *recordingListener) record(ev string) error {
	if l.block != nil {
		<-l.block
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.seen = append(l.seen, ev)

	return l.err
}

func (l *recordingListener) events() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]string(nil), l.seen...)
}

func (l *recordingListener) ExecutionStarted(_ context.Context, e *benchmark.Execution) error {
	return l.record("started-" + e.Query.Name)
}

func (l *recordingListener) ExecutionFinished(_ context.Context, r *benchmark.ExecutionResult) error {
	return l.record("finished-" + r.Execution.Query.Name)
}

func (l *recordingListener) BenchmarkStarted(context.Context, *benchmark.Benchmark) error {
	return l.record("benchmark-started")
}

func testBenchmark() *benchmark.Benchmark {
	return &benchmark.Benchmark{
		Name:        "tpch",
		UniqueName:  "tpch/q_schema=sf1",
		SequenceID:  "1",
		DataSource:  "trino",
		Runs:        1,
		Concurrency: 1,
		Queries:     []*benchmark.Query{{Name: "q1"}, {Name: "q2"}},
	}
}

func testExecution(b *benchmark.Benchmark, query int) *benchmark.Execution {
	return &benchmark.Execution{Benchmark: b, Query: b.Queries[query], SequenceID: query + 1}
}

func startReporter(t *testing.T, listeners ...Listener) StatusReporter {
	t.Helper()

	r := NewStatusReporter(logrus.New(), listeners...)
	require.NoError(t, r.Start(context.Background()))

	return r
}

func TestStatusReporter_PreservesOrderPerListener(t *testing.T) {
	first := &recordingListener{name: "first"}
	second := &recordingListener{name: "second"}
	r := startReporter(t, first, second)

	b := testBenchmark()
	now := time.Now()

	for i := range b.Queries {
		e := testExecution(b, i)
		r.ReportExecutionStarted(e)
		r.ReportExecutionFinished(benchmark.NewExecutionResult(e, now, now, 0, nil))
	}

	require.NoError(t, r.AwaitAll(5*time.Second))
	require.NoError(t, r.Stop())

	expected := []string{"started-q1", "finished-q1", "started-q2", "finished-q2"}
	assert.Equal(t, expected, first.events())
	assert.Equal(t, expected, second.events())
}

func TestStatusReporter_HandleCollectsErrors(t *testing.T) {
	ok := &recordingListener{name: "ok"}
	failing := &recordingListener{name: "failing", err: errors.New("backend down")}
	r := startReporter(t, ok, failing)

	h := r.ReportBenchmarkStarted(testBenchmark())

	err := h.Wait(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failing: backend down")
	assert.Equal(t, "benchmark_started", h.Event())

	require.NoError(t, r.Stop())
}

func TestStatusReporter_ProcessCompleted(t *testing.T) {
	block := make(chan struct{})
	l := &recordingListener{name: "slow", block: block}
	r := startReporter(t, l)

	h := r.ReportBenchmarkStarted(testBenchmark())

	assert.Equal(t, 0, r.ProcessCompleted())

	close(block)
	<-h.Done()

	assert.Equal(t, 1, r.ProcessCompleted())
	assert.Equal(t, 0, r.ProcessCompleted())
	require.NoError(t, r.Stop())
}

func TestStatusReporter_AwaitAllTimeout(t *testing.T) {
	block := make(chan struct{})
	l := &recordingListener{name: "stuck", block: block}
	r := startReporter(t, l)

	r.ReportBenchmarkStarted(testBenchmark())

	err := r.AwaitAll(20 * time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	close(block)
	require.NoError(t, r.Stop())
}

func TestStatusReporter_NoListeners(t *testing.T) {
	r := startReporter(t)

	h := r.ReportBenchmarkStarted(testBenchmark())

	select {
	case <-h.Done():
	default:
		t.Fatal("handle without listeners should be complete")
	}

	require.NoError(t, r.AwaitAll(time.Second))
	require.NoError(t, r.Stop())
}

func TestMetricsListener(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, _ := NewMetricsListener(reg).(*metricsListener)
	ctx := context.Background()

	b := testBenchmark()
	now := time.Now()
	e := testExecution(b, 0)

	require.NoError(t, m.BenchmarkStarted(ctx, b))
	assert.InDelta(t, 1, testutil.ToFloat64(m.runningBenchmarks), 0.001)

	require.NoError(t, m.ExecutionFinished(ctx, benchmark.NewExecutionResult(e, now, now.Add(time.Second), 7, nil)))
	require.NoError(t, m.ExecutionFinished(ctx, benchmark.NewExecutionResult(e, now, now, 0, errors.New("x"))))

	assert.InDelta(t, 1, testutil.ToFloat64(m.executions.WithLabelValues("tpch", "success")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.executions.WithLabelValues("tpch", "failure")), 0.001)
	assert.InDelta(t, 7, testutil.ToFloat64(m.queryRows.WithLabelValues("tpch", "q1")), 0.001)

	result := benchmark.NewBenchmarkResult(b, now, now.Add(time.Second), nil)
	require.NoError(t, m.BenchmarkFinished(ctx, result))
	assert.InDelta(t, 0, testutil.ToFloat64(m.runningBenchmarks), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.benchmarks.WithLabelValues("success")), 0.001)

	group := &benchmark.ThroughputGroupResult{
		Benchmark: b,
		Executions: []*benchmark.ExecutionResult{
			benchmark.NewExecutionResult(e, now, now, 0, nil),
		},
	}
	require.NoError(t, m.ThroughputGroupFinished(ctx, group))
	assert.InDelta(t, 1, testutil.ToFloat64(m.throughputGroups.WithLabelValues("tpch")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.executions.WithLabelValues("tpch", "success")), 0.001)
}

func TestResultsListener_WritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	l := NewResultsListener(logrus.New(), dir, 13*time.Second)

	b := testBenchmark()
	now := time.Now()
	result := benchmark.NewBenchmarkResult(b, now, now.Add(time.Second), []*benchmark.ExecutionResult{
		benchmark.NewExecutionResult(testExecution(b, 0), now, now.Add(5*time.Millisecond), 3, nil),
		benchmark.NewExecutionResult(testExecution(b, 1), now, now, 0, errors.New("syntax error")),
	})

	require.NoError(t, l.BenchmarkFinished(context.Background(), result))

	assert.Equal(t, "tpch_q_schema=sf1.1.json", ResultFileName(b))

	data, err := os.ReadFile(filepath.Join(dir, ResultFileName(b)))
	require.NoError(t, err)

	var file ResultFile
	require.NoError(t, json.Unmarshal(data, &file))

	assert.False(t, file.Successful)
	require.Len(t, file.Executions, 2)
	assert.Equal(t, "syntax error", file.Executions[1].Error)
	assert.InDelta(t, 5, file.Executions[0].DurationMs, 0.001)
	assert.NotEmpty(t, file.Measurements)

	require.NotNil(t, file.MetricsWindow)
	assert.True(t, file.MetricsWindow.From.Equal(now.Add(-13*time.Second)))
	assert.True(t, file.MetricsWindow.To.Equal(now.Add(time.Second+13*time.Second)))
}

func TestResultsListener_OmitsWindowWithoutCutOff(t *testing.T) {
	dir := t.TempDir()
	l := NewResultsListener(logrus.New(), dir, 0)

	b := testBenchmark()
	now := time.Now()

	require.NoError(t, l.BenchmarkFinished(context.Background(), benchmark.NewBenchmarkResult(b, now, now, nil)))

	data, err := os.ReadFile(filepath.Join(dir, ResultFileName(b)))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "metrics_window")
}

func TestStoreListener_PersistsRun(t *testing.T) {
	st := store.NewStore(logrus.New(), &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: filepath.Join(t.TempDir(), "results.db")},
	})
	require.NoError(t, st.Start(context.Background()))
	t.Cleanup(func() { _ = st.Stop() })

	l := NewStoreListener(logrus.New(), st, nil)
	ctx := context.Background()

	b := testBenchmark()
	now := time.Now()

	require.NoError(t, l.BenchmarkStarted(ctx, b))
	require.NoError(t, l.BenchmarkFinished(ctx, benchmark.NewBenchmarkResult(b, now, now.Add(time.Second),
		[]*benchmark.ExecutionResult{
			benchmark.NewExecutionResult(testExecution(b, 0), now, now, 1, nil),
		})))

	runs, err := st.ListBenchmarkRuns(ctx, store.ListOptions{Name: "tpch"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusSuccess, runs[0].Status)

	run, err := st.GetBenchmarkRun(ctx, runs[0].RunID)
	require.NoError(t, err)
	assert.Len(t, run.Executions, 1)
	assert.NotEmpty(t, run.Measurements)
}
