package reporter

import (
	"context"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "queryoor"

// Compile-time interface check.
var _ Listener = (*metricsListener)(nil)

type metricsListener struct {
	queryDuration     *prometheus.HistogramVec
	queryRows         *prometheus.CounterVec
	executions        *prometheus.CounterVec
	benchmarks        *prometheus.CounterVec
	benchmarkDuration *prometheus.HistogramVec
	runningBenchmarks prometheus.Gauge
	throughputGroups  *prometheus.CounterVec
}

// NewMetricsListener creates a listener that exports Prometheus metrics
// registered on reg.
func NewMetricsListener(reg prometheus.Registerer) Listener {
	factory := promauto.With(reg)

	return &metricsListener{
		queryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "query_duration_seconds",
			Help:      "Wall-clock duration of measured query executions.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 16),
		}, []string{"benchmark", "query", "status"}),
		queryRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "query_rows_total",
			Help:      "Rows returned or affected by measured query executions.",
		}, []string{"benchmark", "query"}),
		executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "executions_total",
			Help:      "Measured query executions by outcome.",
		}, []string{"benchmark", "status"}),
		benchmarks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "benchmarks_total",
			Help:      "Finished benchmarks by outcome.",
		}, []string{"status"}),
		benchmarkDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "benchmark_duration_seconds",
			Help:      "Duration of the measured phase of finished benchmarks.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16),
		}, []string{"benchmark"}),
		runningBenchmarks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "running_benchmarks",
			Help:      "Benchmarks whose measured phase is in progress.",
		}),
		throughputGroups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "throughput_groups_total",
			Help:      "Finished throughput workers.",
		}, []string{"benchmark"}),
	}
}

func (m *metricsListener) Name() string {
	return "metrics"
}

func (m *metricsListener) BenchmarkStarted(context.Context, *benchmark.Benchmark) error {
	m.runningBenchmarks.Inc()

	return nil
}

func (m *metricsListener) BenchmarkFinished(_ context.Context, result *benchmark.BenchmarkResult) error {
	m.runningBenchmarks.Dec()
	m.benchmarks.WithLabelValues(status(result.Successful())).Inc()
	m.benchmarkDuration.WithLabelValues(result.Benchmark.Name).Observe(result.Duration().Seconds())

	return nil
}

func (m *metricsListener) ExecutionStarted(context.Context, *benchmark.Execution) error {
	return nil
}

func (m *metricsListener) ExecutionFinished(_ context.Context, result *benchmark.ExecutionResult) error {
	name := result.Execution.Benchmark.Name
	query := result.Execution.Query.Name
	st := status(result.Successful())

	m.queryDuration.WithLabelValues(name, query, st).Observe(result.Duration().Seconds())
	m.executions.WithLabelValues(name, st).Inc()

	if result.Successful() {
		m.queryRows.WithLabelValues(name, query).Add(float64(result.RowsCount))
	}

	return nil
}

func (m *metricsListener) ThroughputGroupFinished(
	_ context.Context,
	group *benchmark.ThroughputGroupResult,
) error {
	name := group.Benchmark.Name

	m.throughputGroups.WithLabelValues(name).Inc()
	m.executions.WithLabelValues(name, "success").Add(float64(group.Succeeded()))
	m.executions.WithLabelValues(name, "failure").Add(float64(group.Failed()))

	for _, e := range group.Executions {
		m.queryDuration.
			WithLabelValues(name, e.Execution.Query.Name, status(e.Successful())).
			Observe(e.Duration().Seconds())
	}

	return nil
}

func status(successful bool) string {
	if successful {
		return "success"
	}

	return "failure"
}
