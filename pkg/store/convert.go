package store

import (
	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/google/uuid"
)

// NewBenchmarkRun converts a benchmark result into a persistable run.
func NewBenchmarkRun(
	result *benchmark.BenchmarkResult,
	measurements []benchmark.Measurement,
) *BenchmarkRun {
	b := result.Benchmark

	run := &BenchmarkRun{
		RunID:          uuid.NewString(),
		Name:           b.Name,
		UniqueName:     b.UniqueName,
		Environment:    b.Environment,
		SequenceID:     b.SequenceID,
		DataSource:     b.DataSource,
		Concurrency:    b.Concurrency,
		Runs:           b.Runs,
		ThroughputTest: b.ThroughputTest,
		Variables:      b.Variables,
		Status:         StatusSuccess,
		StartedAt:      result.Start.UTC(),
		EndedAt:        result.End.UTC(),
		Executions:     make([]QueryExecution, 0, len(result.Executions)),
		Measurements:   make([]Measurement, 0, len(measurements)),
	}

	if !result.Successful() {
		run.Status = StatusFailed
	}

	if result.Err != nil {
		run.Error = result.Err.Error()
	}

	for _, e := range result.Executions {
		exec := QueryExecution{
			QueryName:  e.Execution.Query.Name,
			SequenceID: e.Execution.SequenceID,
			RowsCount:  e.RowsCount,
			Successful: e.Successful(),
			StartedAt:  e.Start.UTC(),
			EndedAt:    e.End.UTC(),
			DurationMs: float64(e.Duration().Microseconds()) / 1000,
		}

		if e.Err != nil {
			exec.Error = e.Err.Error()
		}

		run.Executions = append(run.Executions, exec)
	}

	for _, m := range measurements {
		run.Measurements = append(run.Measurements, Measurement{
			Name:  m.Name,
			Unit:  m.Unit,
			Value: m.Value,
		})
	}

	return run
}
