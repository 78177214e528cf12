package runner

import (
	"fmt"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/hashicorp/go-multierror"
)

// FailedSuiteError is returned by Run when at least one benchmark failed.
type FailedSuiteError struct {
	Failed []*benchmark.BenchmarkResult
	Total  int
}

// Error implements error.
func (e *FailedSuiteError) Error() string {
	return fmt.Sprintf("%d of %d benchmarks failed", len(e.Failed), e.Total)
}

// Causes returns every failure cause of every failed benchmark, each
// prefixed with its benchmark.
func (e *FailedSuiteError) Causes() error {
	var result *multierror.Error

	for _, failed := range e.Failed {
		for _, cause := range failed.FailureCauses() {
			result = multierror.Append(result, fmt.Errorf("%s: %w", failed.Benchmark, cause))
		}
	}

	return result.ErrorOrNil()
}
