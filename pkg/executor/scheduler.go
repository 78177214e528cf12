package executor

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type phaseKind string

const (
	phaseWarmup   phaseKind = "warmup"
	phaseMeasured phaseKind = "measured"
)

// phase is one warm-up or measured pass over a benchmark's queries.
type phase struct {
	kind      phaseKind
	benchmark *benchmark.Benchmark
	runs      int
	deadline  time.Time
}

func (p *phase) reporting() bool {
	return p.kind == phaseMeasured
}

// reportsUnits reports whether individual executions are reported.
// Throughput workers only report group summaries.
func (p *phase) reportsUnits() bool {
	return p.reporting() && !p.benchmark.ThroughputTest
}

// step tells a throughput worker whether to take its next unit.
type step int

const (
	stepContinue step = iota
	stepStop
)

// runPhase dispatches the phase to the benchmark's scheduling strategy.
func (e *executor) runPhase(ctx context.Context, p *phase) ([]*benchmark.ExecutionResult, error) {
	if p.benchmark.ThroughputTest {
		return e.runThroughput(ctx, p)
	}

	return e.runPerUnit(ctx, p)
}

// perUnitExecutions returns one execution per query and run, numbered
// from 1 query-major.
func perUnitExecutions(b *benchmark.Benchmark, runs int) []*benchmark.Execution {
	executions := make([]*benchmark.Execution, 0, len(b.Queries)*runs)

	for _, query := range b.Queries {
		for range runs {
			executions = append(executions, &benchmark.Execution{
				Benchmark:  b,
				Query:      query,
				SequenceID: len(executions) + 1,
			})
		}
	}

	return executions
}

// runPerUnit runs every execution on its own connection with at most
// concurrency executions in flight. The measured phase always runs every
// execution; only warm-up is cut short by the suite deadline.
func (e *executor) runPerUnit(ctx context.Context, p *phase) ([]*benchmark.ExecutionResult, error) {
	b := p.benchmark
	executions := perUnitExecutions(b, p.runs)
	results := make([]*benchmark.ExecutionResult, len(executions))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.Concurrency)

	var skipped atomic.Int64

	for i, execution := range executions {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}

			if p.kind == phaseWarmup && e.deadlineExceeded(p.deadline) {
				skipped.Add(1)

				return nil
			}

			result, err := e.runPooledUnit(gCtx, p, execution)
			if err != nil {
				return err
			}

			results[i] = result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n := skipped.Load(); n > 0 {
		e.log.WithFields(logrus.Fields{
			"benchmark": b.UniqueName,
			"phase":     p.kind,
			"skipped":   n,
		}).Warn("Time limit exceeded, skipping remaining warm-up executions")
	}

	return slices.DeleteFunc(results, func(r *benchmark.ExecutionResult) bool {
		return r == nil
	}), nil
}

func (e *executor) runPooledUnit(
	ctx context.Context,
	p *phase,
	execution *benchmark.Execution,
) (*benchmark.ExecutionResult, error) {
	conn, err := e.acquireConn(ctx, p.benchmark)
	if err != nil {
		return nil, err
	}
	defer e.releaseConn(conn)

	return e.runUnit(ctx, p, conn, execution)
}

// throughputSequenceID numbers executions so that every worker and run
// owns a disjoint block of queryCount ids.
func throughputSequenceID(queryIndex, worker, run, concurrency, queryCount int) int {
	return queryIndex + worker*queryCount + (run-1)*concurrency*queryCount
}

// runThroughput runs exactly concurrency workers, each holding one
// connection for the whole phase.
func (e *executor) runThroughput(ctx context.Context, p *phase) ([]*benchmark.ExecutionResult, error) {
	b := p.benchmark
	groups := make([][]*benchmark.ExecutionResult, b.Concurrency)

	g, gCtx := errgroup.WithContext(ctx)

	for worker := range b.Concurrency {
		g.Go(func() error {
			results, err := e.runWorker(gCtx, p, worker)
			if err != nil {
				return fmt.Errorf("throughput worker %d: %w", worker, err)
			}

			groups[worker] = results

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := slices.Concat(groups...)
	slices.SortFunc(results, func(x, y *benchmark.ExecutionResult) int {
		return x.Execution.SequenceID - y.Execution.SequenceID
	})

	return results, nil
}

// throughputWorker is the state of one long-lived throughput worker.
type throughputWorker struct {
	index   int
	phase   *phase
	conn    datasource.Conn
	order   []int
	started bool
	results []*benchmark.ExecutionResult
}

// runWorker runs the worker's share of the phase. In the measured phase
// every worker runs all queries in its own permuted order; during warm-up
// the queries are partitioned between workers instead.
func (e *executor) runWorker(ctx context.Context, p *phase, index int) ([]*benchmark.ExecutionResult, error) {
	b := p.benchmark

	conn, err := e.acquireConn(ctx, b)
	if err != nil {
		return nil, err
	}
	defer e.releaseConn(conn)

	w := &throughputWorker{
		index:   index,
		phase:   p,
		conn:    conn,
		order:   permutation(len(b.Queries), index),
		results: make([]*benchmark.ExecutionResult, 0, len(b.Queries)*p.runs),
	}

	log := e.log.WithFields(logrus.Fields{
		"benchmark": b.UniqueName,
		"worker":    index,
		"phase":     p.kind,
	})

	log.WithFields(logrus.Fields{
		"queries": len(b.Queries),
		"runs":    p.runs,
	}).Debug("Starting throughput worker")

	if err := e.runWorkerUnits(ctx, w); err != nil {
		return nil, err
	}

	if p.reporting() {
		e.reporter.ReportThroughputGroupFinished(&benchmark.ThroughputGroupResult{
			Benchmark:  b,
			Worker:     index,
			QueryOrder: w.realizedOrder(),
			Executions: w.results,
		})
	}

	return w.results, nil
}

// realizedOrder returns the query order the worker actually ran. A worker
// stopped during its first run only ran a prefix of its permutation.
func (w *throughputWorker) realizedOrder() []int {
	return slices.Clone(w.order[:min(len(w.results), len(w.order))])
}

func (e *executor) runWorkerUnits(ctx context.Context, w *throughputWorker) error {
	b := w.phase.benchmark

	for run := 1; run <= w.phase.runs; run++ {
		for queryIndex := range len(b.Queries) {
			next, err := e.runWorkerUnit(ctx, w, run, queryIndex)
			if err != nil {
				return err
			}

			if next == stepStop {
				e.log.WithFields(logrus.Fields{
					"benchmark": b.UniqueName,
					"worker":    w.index,
					"completed": len(w.results),
				}).Warn("Time limit exceeded, stopping throughput worker")

				return nil
			}
		}
	}

	return nil
}

// runWorkerUnit runs the unit at queryIndex for the given run, if it
// belongs to the worker, and checks the deadline once it completed.
func (e *executor) runWorkerUnit(ctx context.Context, w *throughputWorker, run, queryIndex int) (step, error) {
	if err := ctx.Err(); err != nil {
		return stepStop, err
	}

	p := w.phase
	b := p.benchmark

	target := w.order[queryIndex]

	if p.kind == phaseWarmup {
		if queryIndex%b.Concurrency != w.index {
			return stepContinue, nil
		}

		target = queryIndex
	}

	execution := &benchmark.Execution{
		Benchmark:  b,
		Query:      b.Queries[target],
		SequenceID: throughputSequenceID(queryIndex, w.index, run, b.Concurrency, len(b.Queries)),
	}

	if p.reporting() && !w.started {
		e.reporter.ReportExecutionStarted(execution)
		w.started = true
	}

	result, err := e.runUnit(ctx, p, w.conn, execution)
	if err != nil {
		return stepStop, err
	}

	w.results = append(w.results, result)

	if e.deadlineExceeded(p.deadline) {
		return stepStop, nil
	}

	return stepContinue, nil
}
