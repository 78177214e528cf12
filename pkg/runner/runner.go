package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/executor"
	"github.com/ethpandaops/queryoor/pkg/macro"
	"github.com/ethpandaops/queryoor/pkg/reporter"
	"github.com/sirupsen/logrus"
)

// DefaultReportingTimeout bounds the final wait for outstanding reports.
const DefaultReportingTimeout = 10 * time.Minute

// Runner runs a suite of benchmarks group by group.
type Runner interface {
	// Run executes the benchmarks and returns a *FailedSuiteError when any
	// of them failed. Benchmarks skipped because of the time limit are not
	// failures.
	Run(ctx context.Context, benchmarks []*benchmark.Benchmark) (*SuiteResult, error)
}

// Config for the runner.
type Config struct {
	// TimeLimit is the suite-wide budget, counted from runner creation.
	// Zero disables it.
	TimeLimit        time.Duration
	ReportingTimeout time.Duration

	BeforeAllMacros   []string
	AfterAllMacros    []string
	HealthCheckMacros []string
}

// SuiteResult holds the outcome of a suite run.
type SuiteResult struct {
	Start     time.Time
	End       time.Time
	Total     int
	Results   []*benchmark.BenchmarkResult
	Truncated bool
}

// Failed returns the unsuccessful benchmark results.
func (s *SuiteResult) Failed() []*benchmark.BenchmarkResult {
	failed := make([]*benchmark.BenchmarkResult, 0)

	for _, result := range s.Results {
		if !result.Successful() {
			failed = append(failed, result)
		}
	}

	return failed
}

// NewRunner creates a new runner instance. The suite time limit starts
// counting immediately.
func NewRunner(
	log logrus.FieldLogger,
	cfg *Config,
	exec executor.Executor,
	macros macro.Service,
	statusReporter reporter.StatusReporter,
) Runner {
	if cfg.ReportingTimeout == 0 {
		cfg.ReportingTimeout = DefaultReportingTimeout
	}

	return &runner{
		log:       log.WithField("component", "runner"),
		cfg:       cfg,
		executor:  exec,
		macros:    macros,
		reporter:  statusReporter,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

type runner struct {
	log       logrus.FieldLogger
	cfg       *Config
	executor  executor.Executor
	macros    macro.Service
	reporter  reporter.StatusReporter
	startedAt time.Time
	now       func() time.Time
}

// Ensure interface compliance.
var _ Runner = (*runner)(nil)

// Run implements Runner.
func (r *runner) Run(ctx context.Context, benchmarks []*benchmark.Benchmark) (*SuiteResult, error) {
	suite := &SuiteResult{
		Start:   r.now(),
		Total:   len(benchmarks),
		Results: make([]*benchmark.BenchmarkResult, 0, len(benchmarks)),
	}

	if len(benchmarks) == 0 {
		r.log.Warn("No benchmarks selected")

		suite.End = suite.Start

		return suite, nil
	}

	defer r.awaitReports()

	if err := r.macros.RunMacros(ctx, r.cfg.BeforeAllMacros, nil, nil); err != nil {
		return nil, fmt.Errorf("running before-all macros: %w", err)
	}

	runErr := r.runGroups(ctx, suite, benchmarks)
	suite.End = r.now()

	if runErr == nil {
		if failed := suite.Failed(); len(failed) > 0 {
			runErr = &FailedSuiteError{Failed: failed, Total: len(suite.Results)}
		}
	}

	if err := r.macros.RunMacros(ctx, r.cfg.AfterAllMacros, nil, nil); err != nil {
		if runErr != nil {
			r.log.WithError(err).Error("After-all macros failed for already failed suite")
		} else {
			runErr = fmt.Errorf("running after-all macros: %w", err)
		}
	}

	r.log.WithFields(logrus.Fields{
		"benchmarks": len(suite.Results),
		"total":      suite.Total,
		"failed":     len(suite.Failed()),
		"truncated":  suite.Truncated,
		"duration":   units.HumanDuration(suite.End.Sub(suite.Start)),
	}).Info("Suite finished")

	return suite, runErr
}

// runGroups runs the groups in order until all ran or the time limit is hit.
func (r *runner) runGroups(ctx context.Context, suite *SuiteResult, benchmarks []*benchmark.Benchmark) error {
	groups := groupByName(benchmarks)
	deadline := r.deadline()
	done := 0

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("suite interrupted: %w", err)
		}

		for _, b := range group {
			if r.timeLimitExceeded() {
				r.log.WithFields(logrus.Fields{
					"time_limit": r.cfg.TimeLimit,
					"skipped":    len(benchmarks) - done,
				}).Warn("Time limit exceeded, not scheduling remaining benchmarks")

				suite.Truncated = true

				return nil
			}

			if err := r.macros.RunMacros(ctx, r.cfg.HealthCheckMacros, b, nil); err != nil {
				return fmt.Errorf("health check before %s: %w", b, err)
			}
		}

		suite.Results = append(suite.Results, r.executor.Execute(ctx, group, deadline)...)
		done += len(group)

		if n := r.reporter.ProcessCompleted(); n > 0 {
			r.log.WithField("reports", n).Debug("Processed completed reports")
		}
	}

	return nil
}

func (r *runner) deadline() time.Time {
	if r.cfg.TimeLimit <= 0 {
		return time.Time{}
	}

	return r.startedAt.Add(r.cfg.TimeLimit)
}

func (r *runner) timeLimitExceeded() bool {
	return r.cfg.TimeLimit > 0 && r.now().Sub(r.startedAt) >= r.cfg.TimeLimit
}

func (r *runner) awaitReports() {
	if err := r.reporter.AwaitAll(r.cfg.ReportingTimeout); err != nil {
		r.log.WithError(err).Warn("Not all reports were delivered")
	}
}

// groupByName groups benchmarks sharing a name, in order of first
// appearance.
func groupByName(benchmarks []*benchmark.Benchmark) [][]*benchmark.Benchmark {
	index := make(map[string]int, len(benchmarks))
	groups := make([][]*benchmark.Benchmark, 0, len(benchmarks))

	for _, b := range benchmarks {
		i, ok := index[b.Name]
		if !ok {
			i = len(groups)
			index[b.Name] = i

			groups = append(groups, nil)
		}

		groups[i] = append(groups[i], b)
	}

	return groups
}
