package reporter

import (
	"context"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
)

// Listener receives benchmark lifecycle events. Each listener sees events
// in the order they were reported.
type Listener interface {
	Name() string
	BenchmarkStarted(ctx context.Context, b *benchmark.Benchmark) error
	BenchmarkFinished(ctx context.Context, result *benchmark.BenchmarkResult) error
	ExecutionStarted(ctx context.Context, execution *benchmark.Execution) error
	ExecutionFinished(ctx context.Context, result *benchmark.ExecutionResult) error
	ThroughputGroupFinished(ctx context.Context, group *benchmark.ThroughputGroupResult) error
}

// NopListener implements every Listener event as a no-op. Embed it to
// implement only the events of interest.
type NopListener struct{}

// BenchmarkStarted implements Listener.
func (NopListener) BenchmarkStarted(context.Context, *benchmark.Benchmark) error {
	return nil
}

// BenchmarkFinished implements Listener.
func (NopListener) BenchmarkFinished(context.Context, *benchmark.BenchmarkResult) error {
	return nil
}

// ExecutionStarted implements Listener.
func (NopListener) ExecutionStarted(context.Context, *benchmark.Execution) error {
	return nil
}

// ExecutionFinished implements Listener.
func (NopListener) ExecutionFinished(context.Context, *benchmark.ExecutionResult) error {
	return nil
}

// ThroughputGroupFinished implements Listener.
func (NopListener) ThroughputGroupFinished(context.Context, *benchmark.ThroughputGroupResult) error {
	return nil
}
