package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/ethpandaops/queryoor/pkg/macro"
	"github.com/ethpandaops/queryoor/pkg/reporter"
	"github.com/ethpandaops/queryoor/pkg/timing"
	"github.com/sirupsen/logrus"
)

// Executor runs groups of benchmarks that share a name.
type Executor interface {
	// Execute runs every benchmark of the group in order and returns one
	// result per benchmark. A zero deadline disables the suite time limit.
	Execute(
		ctx context.Context,
		benchmarks []*benchmark.Benchmark,
		deadline time.Time,
	) []*benchmark.BenchmarkResult
}

// Ensure interface compliance.
var _ Executor = (*executor)(nil)

type executor struct {
	log      logrus.FieldLogger
	provider datasource.Provider
	macros   macro.Service
	reporter reporter.StatusReporter
	sync     timing.Synchronizer
	now      func() time.Time
}

// NewExecutor creates a new executor instance.
func NewExecutor(
	log logrus.FieldLogger,
	provider datasource.Provider,
	macros macro.Service,
	statusReporter reporter.StatusReporter,
	sync timing.Synchronizer,
) Executor {
	return &executor{
		log:      log.WithField("component", "executor"),
		provider: provider,
		macros:   macros,
		reporter: statusReporter,
		sync:     sync,
		now:      time.Now,
	}
}

// Execute implements Executor.
func (e *executor) Execute(
	ctx context.Context,
	benchmarks []*benchmark.Benchmark,
	deadline time.Time,
) []*benchmark.BenchmarkResult {
	results := make([]*benchmark.BenchmarkResult, 0, len(benchmarks))

	for i, b := range benchmarks {
		e.log.WithFields(logrus.Fields{
			"benchmark":   b.UniqueName,
			"sequence_id": b.SequenceID,
			"position":    fmt.Sprintf("%d/%d", i+1, len(benchmarks)),
		}).Info("Processing benchmark")

		if err := ctx.Err(); err != nil {
			now := e.now()
			results = append(results, benchmark.FailedBenchmarkResult(b, now, now, err))

			continue
		}

		results = append(results, e.executeBenchmark(ctx, b, deadline))
	}

	return results
}

// executeBenchmark wraps the benchmark's phases in its benchmark macros.
func (e *executor) executeBenchmark(
	ctx context.Context,
	b *benchmark.Benchmark,
	deadline time.Time,
) *benchmark.BenchmarkResult {
	log := e.log.WithField("benchmark", b.UniqueName)
	start := e.now()

	if err := e.macros.RunMacros(ctx, b.BeforeBenchmarkMacros, b, nil); err != nil {
		return benchmark.FailedBenchmarkResult(b, start, e.now(),
			fmt.Errorf("running before-benchmark macros: %w", err))
	}

	result := e.measure(ctx, b, deadline)

	if err := e.macros.RunMacros(ctx, b.AfterBenchmarkMacros, b, nil); err != nil {
		if !result.Successful() {
			log.WithError(err).Error("After-benchmark macros failed for already failed benchmark")

			return result
		}

		return benchmark.FailedBenchmarkResult(b, result.Start, result.End,
			fmt.Errorf("running after-benchmark macros: %w", err))
	}

	return result
}

// measure runs the warm-up and the measured phase. A benchmark that was
// reported started is always reported finished.
func (e *executor) measure(
	ctx context.Context,
	b *benchmark.Benchmark,
	deadline time.Time,
) *benchmark.BenchmarkResult {
	if err := e.warmup(ctx, b, deadline); err != nil {
		now := e.now()

		return benchmark.FailedBenchmarkResult(b, now, now, err)
	}

	if err := e.sync.AfterBenchmark(ctx, b); err != nil {
		now := e.now()

		return benchmark.FailedBenchmarkResult(b, now, now,
			fmt.Errorf("waiting before benchmark report: %w", err))
	}

	e.reporter.ReportBenchmarkStarted(b)

	start := e.now()
	executions, err := e.runPhase(ctx, &phase{
		kind:      phaseMeasured,
		benchmark: b,
		runs:      b.Runs,
		deadline:  deadline,
	})
	end := e.now()

	var result *benchmark.BenchmarkResult
	if err != nil {
		result = benchmark.FailedBenchmarkResult(b, start, end, fmt.Errorf("executing queries: %w", err))
	} else {
		result = benchmark.NewBenchmarkResult(b, start, end, executions)
	}

	e.reporter.ReportBenchmarkFinished(result)

	return result
}

// deadlineExceeded reports whether the suite deadline has passed.
func (e *executor) deadlineExceeded(deadline time.Time) bool {
	return !deadline.IsZero() && e.now().After(deadline)
}

// acquireConn opens a dedicated connection for the benchmark's datasource.
func (e *executor) acquireConn(ctx context.Context, b *benchmark.Benchmark) (datasource.Conn, error) {
	conn, err := e.provider.Conn(ctx, b.DataSource)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection to %q: %w", b.DataSource, err)
	}

	return conn, nil
}

func (e *executor) releaseConn(conn datasource.Conn) {
	if err := conn.Close(); err != nil {
		e.log.WithError(err).Warn("Failed to close connection")
	}
}
