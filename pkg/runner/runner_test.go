package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/ethpandaops/queryoor/pkg/reporter"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	failures map[string]error
	groups   [][]string
}

func (e *fakeExecutor) Execute(
	_ context.Context,
	benchmarks []*benchmark.Benchmark,
	_ time.Time,
) []*benchmark.BenchmarkResult {
	names := make([]string, 0, len(benchmarks))
	results := make([]*benchmark.BenchmarkResult, 0, len(benchmarks))
	now := time.Now()

	for _, b := range benchmarks {
		names = append(names, b.UniqueName)

		if err, ok := e.failures[b.UniqueName]; ok {
			results = append(results, benchmark.FailedBenchmarkResult(b, now, now, err))

			continue
		}

		results = append(results, benchmark.NewBenchmarkResult(b, now, now, nil))
	}

	e.groups = append(e.groups, names)

	return results
}

type fakeMacros struct {
	failures map[string]error

	mu    sync.Mutex
	calls []string
}

func (m *fakeMacros) RunMacros(
	_ context.Context,
	names []string,
	_ *benchmark.Benchmark,
	_ datasource.Conn,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, name := range names {
		m.calls = append(m.calls, name)

		if err, ok := m.failures[name]; ok {
			return err
		}
	}

	return nil
}

func newTestRunner(t *testing.T, cfg *Config) (*runner, *fakeExecutor, *fakeMacros) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	rep := reporter.NewStatusReporter(log)
	require.NoError(t, rep.Start(context.Background()))
	t.Cleanup(func() { _ = rep.Stop() })

	exec := &fakeExecutor{failures: map[string]error{}}
	macros := &fakeMacros{failures: map[string]error{}}

	r, _ := NewRunner(log, cfg, exec, macros, rep).(*runner)

	return r, exec, macros
}

func bench(name, uniqueName string) *benchmark.Benchmark {
	return &benchmark.Benchmark{Name: name, UniqueName: uniqueName, SequenceID: "1"}
}

func TestGroupByName(t *testing.T) {
	groups := groupByName([]*benchmark.Benchmark{
		bench("a", "a1"),
		bench("b", "b1"),
		bench("a", "a2"),
		bench("c", "c1"),
	})

	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, "a2", groups[0][1].UniqueName)
	assert.Equal(t, "b1", groups[1][0].UniqueName)
	assert.Equal(t, "c1", groups[2][0].UniqueName)
}

func TestRun_RunsGroupsInOrder(t *testing.T) {
	r, exec, macros := newTestRunner(t, &Config{
		BeforeAllMacros:   []string{"setup"},
		AfterAllMacros:    []string{"teardown"},
		HealthCheckMacros: []string{"health"},
	})

	suite, err := r.Run(context.Background(), []*benchmark.Benchmark{
		bench("a", "a1"),
		bench("a", "a2"),
		bench("b", "b1"),
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a1", "a2"}, {"b1"}}, exec.groups)
	assert.Len(t, suite.Results, 3)
	assert.Empty(t, suite.Failed())
	assert.False(t, suite.Truncated)
	assert.Equal(t, []string{"setup", "health", "health", "health", "teardown"}, macros.calls)
}

func TestRun_NoBenchmarks(t *testing.T) {
	r, exec, macros := newTestRunner(t, &Config{BeforeAllMacros: []string{"setup"}})

	suite, err := r.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.Empty(t, suite.Results)
	assert.Empty(t, exec.groups)
	assert.Empty(t, macros.calls)
}

func TestRun_FailedSuite(t *testing.T) {
	r, exec, _ := newTestRunner(t, &Config{})
	exec.failures["a1"] = errors.New("before-benchmark macro failed")

	suite, err := r.Run(context.Background(), []*benchmark.Benchmark{
		bench("a", "a1"),
		bench("b", "b1"),
	})
	require.Error(t, err)

	var failed *FailedSuiteError
	require.ErrorAs(t, err, &failed)

	assert.Equal(t, "1 of 2 benchmarks failed", failed.Error())
	assert.Equal(t, 2, failed.Total)
	require.Len(t, failed.Failed, 1)
	assert.Equal(t, "a1", failed.Failed[0].Benchmark.UniqueName)
	assert.Empty(t, failed.Failed[0].Executions)
	assert.Contains(t, failed.Causes().Error(), "before-benchmark macro failed")
	assert.Len(t, suite.Results, 2)
}

func TestRun_TimeLimit(t *testing.T) {
	r, exec, _ := newTestRunner(t, &Config{TimeLimit: time.Hour})

	r.now = func() time.Time {
		// The first group is scheduled in time, later ones are not.
		if len(exec.groups) == 0 {
			return r.startedAt
		}

		return r.startedAt.Add(2 * time.Hour)
	}

	suite, err := r.Run(context.Background(), []*benchmark.Benchmark{
		bench("a", "a1"),
		bench("b", "b1"),
		bench("c", "c1"),
	})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a1"}}, exec.groups)
	assert.True(t, suite.Truncated)
	assert.Len(t, suite.Results, 1)
}

func TestRun_MacroFailures(t *testing.T) {
	tests := []struct {
		name          string
		failing       string
		benchFailure  bool
		expectGroups  int
		errContains   string
		failedSuite   bool
		expectNoSuite bool
	}{
		{
			name:          "before-all aborts the suite",
			failing:       "setup",
			expectGroups:  0,
			errContains:   "before-all",
			expectNoSuite: true,
		},
		{
			name:         "health check aborts the suite",
			failing:      "health",
			expectGroups: 0,
			errContains:  "health check",
		},
		{
			name:         "after-all fails a successful suite",
			failing:      "teardown",
			expectGroups: 2,
			errContains:  "after-all",
		},
		{
			name:         "after-all failure is logged for a failed suite",
			failing:      "teardown",
			benchFailure: true,
			expectGroups: 2,
			errContains:  "1 of 2 benchmarks failed",
			failedSuite:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, exec, macros := newTestRunner(t, &Config{
				BeforeAllMacros:   []string{"setup"},
				AfterAllMacros:    []string{"teardown"},
				HealthCheckMacros: []string{"health"},
			})
			macros.failures[tt.failing] = errors.New(tt.failing + " failed")

			if tt.benchFailure {
				exec.failures["a1"] = errors.New("query failed")
			}

			suite, err := r.Run(context.Background(), []*benchmark.Benchmark{
				bench("a", "a1"),
				bench("b", "b1"),
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errContains)
			assert.Len(t, exec.groups, tt.expectGroups)

			var failed *FailedSuiteError
			assert.Equal(t, tt.failedSuite, errors.As(err, &failed))

			if tt.expectNoSuite {
				assert.Nil(t, suite)
			}
		})
	}
}
