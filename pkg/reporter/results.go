package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/sirupsen/logrus"
)

// ResultFile is the JSON document written per finished benchmark.
type ResultFile struct {
	Name          string                  `json:"name"`
	UniqueName    string                  `json:"unique_name"`
	SequenceID    string                  `json:"sequence_id"`
	DataSource    string                  `json:"datasource"`
	Environment   string                  `json:"environment,omitempty"`
	Concurrency   int                     `json:"concurrency"`
	Runs          int                     `json:"runs"`
	Throughput    bool                    `json:"throughput_test"`
	Variables     map[string]string       `json:"variables,omitempty"`
	Successful    bool                    `json:"successful"`
	Error         string                  `json:"error,omitempty"`
	StartedAt     time.Time               `json:"started_at"`
	EndedAt       time.Time               `json:"ended_at"`
	MetricsWindow *MetricsWindow          `json:"metrics_window,omitempty"`
	Measurements  []benchmark.Measurement `json:"measurements"`
	Executions    []ResultFileExecution   `json:"executions"`
}

// MetricsWindow is the measured phase padded by the cut-off threshold of
// the external metrics store. Samples outside it belong to other benchmarks.
type MetricsWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ResultFileExecution is one execution within a ResultFile.
type ResultFileExecution struct {
	Query      string  `json:"query"`
	SequenceID int     `json:"sequence_id"`
	RowsCount  int64   `json:"rows_count"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Compile-time interface check.
var _ Listener = (*resultsListener)(nil)

type resultsListener struct {
	NopListener

	log    logrus.FieldLogger
	dir    string
	cutOff time.Duration
}

// NewResultsListener creates a listener that writes one JSON file per
// finished benchmark into dir. A positive cutOff adds the padded metrics
// window to each file.
func NewResultsListener(log logrus.FieldLogger, dir string, cutOff time.Duration) Listener {
	return &resultsListener{
		log:    log.WithField("component", "results-writer"),
		dir:    dir,
		cutOff: cutOff,
	}
}

func (l *resultsListener) Name() string {
	return "results"
}

func (l *resultsListener) BenchmarkFinished(_ context.Context, result *benchmark.BenchmarkResult) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("creating results dir: %w", err)
	}

	data, err := json.MarshalIndent(newResultFile(result, l.cutOff), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	path := filepath.Join(l.dir, ResultFileName(result.Benchmark))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result file: %w", err)
	}

	l.log.WithField("path", path).Debug("Result file written")

	return nil
}

// ResultFileName returns the file name used for a benchmark's result.
func ResultFileName(b *benchmark.Benchmark) string {
	name := strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(b.UniqueName)

	return fmt.Sprintf("%s.%s.json", name, b.SequenceID)
}

func newResultFile(result *benchmark.BenchmarkResult, cutOff time.Duration) *ResultFile {
	b := result.Benchmark

	file := &ResultFile{
		Name:         b.Name,
		UniqueName:   b.UniqueName,
		SequenceID:   b.SequenceID,
		DataSource:   b.DataSource,
		Environment:  b.Environment,
		Concurrency:  b.Concurrency,
		Runs:         b.Runs,
		Throughput:   b.ThroughputTest,
		Variables:    b.Variables,
		Successful:   result.Successful(),
		StartedAt:    result.Start.UTC(),
		EndedAt:      result.End.UTC(),
		Measurements: benchmark.ResultMeasurements(result),
		Executions:   make([]ResultFileExecution, 0, len(result.Executions)),
	}

	if result.Err != nil {
		file.Error = result.Err.Error()
	}

	if cutOff > 0 {
		file.MetricsWindow = &MetricsWindow{
			From: file.StartedAt.Add(-cutOff),
			To:   file.EndedAt.Add(cutOff),
		}
	}

	for _, e := range result.Executions {
		exec := ResultFileExecution{
			Query:      e.Execution.Query.Name,
			SequenceID: e.Execution.SequenceID,
			RowsCount:  e.RowsCount,
			DurationMs: float64(e.Duration().Microseconds()) / 1000,
		}

		if e.Err != nil {
			exec.Error = e.Err.Error()
		}

		file.Executions = append(file.Executions, exec)
	}

	return file
}
