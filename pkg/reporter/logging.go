package reporter

import (
	"context"

	"github.com/docker/go-units"
	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Listener = (*loggingListener)(nil)

var rowUnits = []string{"", "k", "M", "G", "T"}

type loggingListener struct {
	log logrus.FieldLogger
}

// NewLoggingListener creates a listener that logs every lifecycle event.
func NewLoggingListener(log logrus.FieldLogger) Listener {
	return &loggingListener{
		log: log.WithField("component", "progress"),
	}
}

func (l *loggingListener) Name() string {
	return "logging"
}

func (l *loggingListener) BenchmarkStarted(_ context.Context, b *benchmark.Benchmark) error {
	l.log.WithFields(logrus.Fields{
		"benchmark":   b.UniqueName,
		"sequence_id": b.SequenceID,
		"queries":     len(b.Queries),
		"runs":        b.Runs,
		"concurrency": b.Concurrency,
		"throughput":  b.ThroughputTest,
	}).Info("Executing benchmark")

	return nil
}

func (l *loggingListener) BenchmarkFinished(_ context.Context, result *benchmark.BenchmarkResult) error {
	log := l.log.WithFields(logrus.Fields{
		"benchmark":   result.Benchmark.UniqueName,
		"sequence_id": result.Benchmark.SequenceID,
		"duration":    units.HumanDuration(result.Duration()),
		"executions":  len(result.Executions),
		"successful":  result.SuccessfulExecutions(),
	})

	if !result.Successful() {
		log.Warn("Finished benchmark with failures")

		return nil
	}

	log.Info("Finished benchmark")

	return nil
}

func (l *loggingListener) ExecutionStarted(_ context.Context, execution *benchmark.Execution) error {
	b := execution.Benchmark

	l.log.WithFields(logrus.Fields{
		"benchmark":   b.UniqueName,
		"query":       execution.Query.Name,
		"sequence_id": execution.SequenceID,
		"of":          len(b.Queries) * b.Runs,
	}).Debug("Query started")

	return nil
}

func (l *loggingListener) ExecutionFinished(_ context.Context, result *benchmark.ExecutionResult) error {
	log := l.log.WithFields(logrus.Fields{
		"benchmark":   result.Execution.Benchmark.UniqueName,
		"query":       result.Execution.Query.Name,
		"sequence_id": result.Execution.SequenceID,
		"duration":    result.Duration().String(),
	})

	if !result.Successful() {
		log.WithError(result.Err).Error("Query failed")

		return nil
	}

	log.WithField("rows", units.CustomSize("%.4g%s", float64(result.RowsCount), 1000.0, rowUnits)).
		Info("Query finished")

	return nil
}

func (l *loggingListener) ThroughputGroupFinished(
	_ context.Context,
	group *benchmark.ThroughputGroupResult,
) error {
	l.log.WithFields(logrus.Fields{
		"benchmark":   group.Benchmark.UniqueName,
		"worker":      group.Worker,
		"succeeded":   group.Succeeded(),
		"failed":      group.Failed(),
		"query_order": group.QueryOrder,
	}).Info("Concurrency test queries finished")

	return nil
}
