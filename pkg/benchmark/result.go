package benchmark

import (
	"time"
)

// ExecutionResult is the outcome of a single Execution.
type ExecutionResult struct {
	Execution *Execution
	Start     time.Time
	End       time.Time
	RowsCount int64
	Err       error
}

// NewExecutionResult builds a result for a finished execution. A nil err
// marks the execution as successful.
func NewExecutionResult(
	execution *Execution,
	start, end time.Time,
	rowsCount int64,
	err error,
) *ExecutionResult {
	return &ExecutionResult{
		Execution: execution,
		Start:     start,
		End:       end,
		RowsCount: rowsCount,
		Err:       err,
	}
}

// Successful reports whether the query completed without error.
func (r *ExecutionResult) Successful() bool {
	return r.Err == nil
}

// Duration returns the wall-clock time spent executing.
func (r *ExecutionResult) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// BenchmarkResult is the aggregated outcome of one benchmark invocation.
type BenchmarkResult struct {
	Benchmark  *Benchmark
	Start      time.Time
	End        time.Time
	Executions []*ExecutionResult
	Err        error
}

// NewBenchmarkResult builds the result of a benchmark whose measured
// phase completed.
func NewBenchmarkResult(
	b *Benchmark,
	start, end time.Time,
	executions []*ExecutionResult,
) *BenchmarkResult {
	return &BenchmarkResult{
		Benchmark:  b,
		Start:      start,
		End:        end,
		Executions: executions,
	}
}

// FailedBenchmarkResult builds the result of a benchmark that failed as a
// whole. It carries no executions.
func FailedBenchmarkResult(b *Benchmark, start, end time.Time, err error) *BenchmarkResult {
	return &BenchmarkResult{
		Benchmark:  b,
		Start:      start,
		End:        end,
		Executions: []*ExecutionResult{},
		Err:        err,
	}
}

// Successful reports whether the benchmark and all of its executions
// succeeded.
func (r *BenchmarkResult) Successful() bool {
	if r.Err != nil {
		return false
	}

	for _, e := range r.Executions {
		if !e.Successful() {
			return false
		}
	}

	return true
}

// FailureCauses returns the benchmark-level error followed by every
// execution error.
func (r *BenchmarkResult) FailureCauses() []error {
	causes := make([]error, 0, 1)

	if r.Err != nil {
		causes = append(causes, r.Err)
	}

	for _, e := range r.Executions {
		if e.Err != nil {
			causes = append(causes, e.Err)
		}
	}

	return causes
}

// Duration returns the wall-clock time of the measured phase.
func (r *BenchmarkResult) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// SuccessfulExecutions returns the number of successful executions.
func (r *BenchmarkResult) SuccessfulExecutions() int {
	var n int

	for _, e := range r.Executions {
		if e.Successful() {
			n++
		}
	}

	return n
}

// ThroughputGroupResult summarises the executions of one throughput worker.
type ThroughputGroupResult struct {
	Benchmark  *Benchmark
	Worker     int
	QueryOrder []int
	Executions []*ExecutionResult
}

// Succeeded returns the number of successful executions in the group.
func (g *ThroughputGroupResult) Succeeded() int {
	var n int

	for _, e := range g.Executions {
		if e.Successful() {
			n++
		}
	}

	return n
}

// Failed returns the number of failed executions in the group.
func (g *ThroughputGroupResult) Failed() int {
	return len(g.Executions) - g.Succeeded()
}

// Measurement is a single named value derived from a benchmark result.
type Measurement struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit"`
	Value float64 `json:"value"`
}
