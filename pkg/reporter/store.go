package reporter

import (
	"context"
	"fmt"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/stats"
	"github.com/ethpandaops/queryoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Listener = (*storeListener)(nil)

type storeListener struct {
	NopListener

	log    logrus.FieldLogger
	store  store.Store
	reader stats.Reader

	// Only touched from the listener's delivery goroutine.
	snapshots map[*benchmark.Benchmark]*stats.Stats
}

// NewStoreListener creates a listener that persists finished benchmarks.
// When reader is not nil, host stats deltas over the measured phase are
// stored as additional measurements.
func NewStoreListener(
	log logrus.FieldLogger,
	st store.Store,
	reader stats.Reader,
) Listener {
	return &storeListener{
		log:       log.WithField("component", "store-listener"),
		store:     st,
		reader:    reader,
		snapshots: make(map[*benchmark.Benchmark]*stats.Stats, 4),
	}
}

func (l *storeListener) Name() string {
	return "store"
}

func (l *storeListener) BenchmarkStarted(_ context.Context, b *benchmark.Benchmark) error {
	if l.reader == nil {
		return nil
	}

	snapshot, err := l.reader.ReadStats()
	if err != nil {
		l.log.WithError(err).Warn("Failed to read host stats")

		return nil
	}

	l.snapshots[b] = snapshot

	return nil
}

func (l *storeListener) BenchmarkFinished(ctx context.Context, result *benchmark.BenchmarkResult) error {
	measurements := benchmark.ResultMeasurements(result)

	if before, ok := l.snapshots[result.Benchmark]; ok {
		delete(l.snapshots, result.Benchmark)

		after, err := l.reader.ReadStats()
		if err != nil {
			l.log.WithError(err).Warn("Failed to read host stats")
		} else {
			measurements = append(measurements, stats.ComputeDelta(before, after).Measurements()...)
		}
	}

	run := store.NewBenchmarkRun(result, measurements)
	if err := l.store.SaveBenchmarkRun(ctx, run); err != nil {
		return fmt.Errorf("storing %s: %w", result.Benchmark, err)
	}

	l.log.WithFields(logrus.Fields{
		"benchmark": result.Benchmark.UniqueName,
		"run_id":    run.RunID,
	}).Debug("Benchmark run stored")

	return nil
}
