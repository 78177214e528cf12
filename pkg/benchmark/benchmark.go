package benchmark

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"
)

// Query is a single named, already rendered statement.
type Query struct {
	Name      string `json:"name"`
	Statement string `json:"statement"`
}

// Benchmark describes one benchmark for one execution sequence.
// It is never mutated after loading.
type Benchmark struct {
	Name           string            `json:"name"`
	UniqueName     string            `json:"unique_name"`
	SequenceID     string            `json:"sequence_id"`
	DataSource     string            `json:"datasource"`
	Environment    string            `json:"environment,omitempty"`
	Queries        []*Query          `json:"queries"`
	Runs           int               `json:"runs"`
	PrewarmRuns    int               `json:"prewarm_runs"`
	Concurrency    int               `json:"concurrency"`
	ThroughputTest bool              `json:"throughput_test"`
	Frequency      time.Duration     `json:"frequency,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`

	BeforeBenchmarkMacros []string `json:"before_benchmark_macros,omitempty"`
	AfterBenchmarkMacros  []string `json:"after_benchmark_macros,omitempty"`
	BeforeExecutionMacros []string `json:"before_execution_macros,omitempty"`
	AfterExecutionMacros  []string `json:"after_execution_macros,omitempty"`
}

// IsSerial reports whether queries run one at a time.
func (b *Benchmark) IsSerial() bool {
	return b.Concurrency == 1
}

// IsConcurrent reports whether more than one query may run at once.
func (b *Benchmark) IsConcurrent() bool {
	return b.Concurrency > 1
}

// Validate checks the run counts and query list.
func (b *Benchmark) Validate() error {
	if b.Name == "" {
		return errors.New("name is required")
	}

	if b.Runs < 1 {
		return fmt.Errorf("benchmark %q: runs must be at least 1, got %d", b.Name, b.Runs)
	}

	if b.PrewarmRuns < 0 {
		return fmt.Errorf("benchmark %q: prewarm runs must not be negative, got %d",
			b.Name, b.PrewarmRuns)
	}

	if b.Concurrency < 1 {
		return fmt.Errorf("benchmark %q: concurrency must be at least 1, got %d",
			b.Name, b.Concurrency)
	}

	if len(b.Queries) == 0 {
		return fmt.Errorf("benchmark %q: at least one query is required", b.Name)
	}

	return nil
}

// WithSequenceID returns a copy of the benchmark bound to another
// execution sequence. Slices and maps are cloned.
func (b *Benchmark) WithSequenceID(sequenceID string) *Benchmark {
	clone := *b
	clone.SequenceID = sequenceID
	clone.Queries = slices.Clone(b.Queries)
	clone.Variables = maps.Clone(b.Variables)
	clone.BeforeBenchmarkMacros = slices.Clone(b.BeforeBenchmarkMacros)
	clone.AfterBenchmarkMacros = slices.Clone(b.AfterBenchmarkMacros)
	clone.BeforeExecutionMacros = slices.Clone(b.BeforeExecutionMacros)
	clone.AfterExecutionMacros = slices.Clone(b.AfterExecutionMacros)

	return &clone
}

// String returns a short identifier for logs.
func (b *Benchmark) String() string {
	return fmt.Sprintf("%s (sequence %s)", b.UniqueName, b.SequenceID)
}

// Execution is one scheduled attempt of a query within a benchmark.
type Execution struct {
	Benchmark  *Benchmark
	Query      *Query
	SequenceID int
}

// String returns a short identifier for logs.
func (e *Execution) String() string {
	return fmt.Sprintf("%s/%s#%d", e.Benchmark.UniqueName, e.Query.Name, e.SequenceID)
}
