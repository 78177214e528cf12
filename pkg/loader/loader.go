package loader

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// descriptorExtension marks benchmark descriptor files.
const descriptorExtension = ".yaml"

// frequencyUnit is the unit of the frequency descriptor key.
const frequencyUnit = 24 * time.Hour

// Loader loads benchmark descriptors from disk.
type Loader interface {
	// LoadBenchmarks returns the selected benchmarks, sorted by name, once
	// per execution sequence id.
	LoadBenchmarks(ctx context.Context, sequenceIDs []string) ([]*benchmark.Benchmark, error)
}

// FreshnessChecker looks up when a benchmark last succeeded.
type FreshnessChecker interface {
	LastSuccessfulRun(ctx context.Context, uniqueName, environment string) (time.Time, bool, error)
}

// Config for the loader.
type Config struct {
	BenchmarksDir         string
	SQLDir                string
	Environment           string
	ActiveBenchmarks      []string
	ActiveVariables       map[string]string
	FrequencyCheckEnabled bool
}

// NewLoader creates a new loader. freshness may be nil when the frequency
// check is disabled.
func NewLoader(log logrus.FieldLogger, cfg *Config, freshness FreshnessChecker) Loader {
	return &loader{
		log:       log.WithField("component", "loader"),
		cfg:       cfg,
		freshness: freshness,
		now:       time.Now,
	}
}

type loader struct {
	log       logrus.FieldLogger
	cfg       *Config
	freshness FreshnessChecker
	now       func() time.Time
}

// Ensure interface compliance.
var _ Loader = (*loader)(nil)

// LoadBenchmarks implements Loader.
func (l *loader) LoadBenchmarks(ctx context.Context, sequenceIDs []string) ([]*benchmark.Benchmark, error) {
	if len(sequenceIDs) == 0 {
		return nil, fmt.Errorf("at least one execution sequence id is required")
	}

	files, err := l.findDescriptors()
	if err != nil {
		return nil, err
	}

	all := make([]*benchmark.Benchmark, 0, len(files))

	for _, file := range files {
		benchmarks, err := l.loadFile(file)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", file.path, err)
		}

		all = append(all, benchmarks...)
	}

	slices.SortStableFunc(all, func(a, b *benchmark.Benchmark) int {
		return strings.Compare(a.Name, b.Name)
	})

	included := slices.DeleteFunc(slices.Clone(all), func(b *benchmark.Benchmark) bool {
		return !l.activeVariablesMatch(b)
	})

	if excluded := len(all) - len(included); excluded > 0 {
		l.log.WithField("excluded", excluded).Info("Excluded benchmarks by active variables")
	}

	if l.cfg.FrequencyCheckEnabled {
		if included, err = l.dropFresh(ctx, included); err != nil {
			return nil, err
		}
	}

	selected := make([]*benchmark.Benchmark, 0, len(included)*len(sequenceIDs))

	for _, b := range included {
		for _, id := range sequenceIDs {
			selected = append(selected, b.WithSequenceID(id))
		}

		l.log.WithFields(logrus.Fields{
			"benchmark":   b.UniqueName,
			"datasource":  b.DataSource,
			"runs":        b.Runs,
			"prewarm":     b.PrewarmRuns,
			"concurrency": b.Concurrency,
			"throughput":  b.ThroughputTest,
		}).Info("Selected benchmark")
	}

	return selected, nil
}

type descriptorFile struct {
	path string
	name string
}

// findDescriptors walks the benchmarks directory. A benchmark's name is
// its path relative to the directory without the extension.
func (l *loader) findDescriptors() ([]descriptorFile, error) {
	files := make([]descriptorFile, 0, 16)
	seen := make(map[string]string, 16)

	err := filepath.WalkDir(l.cfg.BenchmarksDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() || filepath.Ext(path) != descriptorExtension {
			return nil
		}

		rel, err := filepath.Rel(l.cfg.BenchmarksDir, path)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", path, err)
		}

		name := filepath.ToSlash(strings.TrimSuffix(rel, descriptorExtension))

		if len(l.cfg.ActiveBenchmarks) > 0 && !slices.Contains(l.cfg.ActiveBenchmarks, name) {
			return nil
		}

		if other, ok := seen[name]; ok {
			return fmt.Errorf("benchmark %q defined in multiple locations: %s, %s", name, other, path)
		}

		seen[name] = path
		files = append(files, descriptorFile{path: path, name: name})

		l.log.WithField("path", path).Debug("Benchmark file found")

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("searching benchmarks in %s: %w", l.cfg.BenchmarksDir, err)
	}

	return files, nil
}

// loadFile builds one benchmark per variable combination of the file.
func (l *loader) loadFile(file descriptorFile) ([]*benchmark.Benchmark, error) {
	data, err := os.ReadFile(file.path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	for _, key := range []string{keyDataSource, keyQueryNames} {
		if _, ok := doc[key]; !ok {
			return nil, fmt.Errorf("mandatory key %q not present", key)
		}
	}

	combinations, err := expandDescriptors(file.name, doc)
	if err != nil {
		return nil, err
	}

	benchmarks := make([]*benchmark.Benchmark, 0, len(combinations))

	for _, variables := range combinations {
		b, err := l.newBenchmark(variables)
		if err != nil {
			return nil, err
		}

		benchmarks = append(benchmarks, b)
	}

	return benchmarks, nil
}

func (l *loader) newBenchmark(variables map[string]string) (*benchmark.Benchmark, error) {
	d, err := decodeDescriptor(variables)
	if err != nil {
		return nil, err
	}

	queries := make([]*benchmark.Query, 0, len(d.QueryNames))

	for _, name := range d.QueryNames {
		query, err := l.loadQuery(name, variables)
		if err != nil {
			return nil, err
		}

		queries = append(queries, query)
	}

	b := &benchmark.Benchmark{
		Name:                  d.Name,
		UniqueName:            uniqueName(d.Name, variables),
		DataSource:            d.DataSource,
		Environment:           l.cfg.Environment,
		Queries:               queries,
		Runs:                  d.Runs,
		PrewarmRuns:           d.PrewarmRuns,
		Concurrency:           d.Concurrency,
		ThroughputTest:        d.ThroughputTest,
		Frequency:             time.Duration(d.Frequency) * frequencyUnit,
		Variables:             variables,
		BeforeBenchmarkMacros: d.BeforeBenchmarkMacros,
		AfterBenchmarkMacros:  d.AfterBenchmarkMacros,
		BeforeExecutionMacros: d.BeforeExecutionMacros,
		AfterExecutionMacros:  d.AfterExecutionMacros,
	}

	if err := b.Validate(); err != nil {
		return nil, err
	}

	return b, nil
}

// activeVariablesMatch reports whether every active variable the benchmark
// defines has the expected value.
func (l *loader) activeVariablesMatch(b *benchmark.Benchmark) bool {
	for key, expected := range l.cfg.ActiveVariables {
		if actual, ok := b.Variables[key]; ok && actual != expected {
			l.log.WithFields(logrus.Fields{
				"benchmark": b.UniqueName,
				"variable":  key,
				"actual":    actual,
				"expected":  expected,
			}).Debug("Benchmark excluded by active variable")

			return false
		}
	}

	return true
}

// dropFresh removes benchmarks that succeeded within their frequency.
func (l *loader) dropFresh(ctx context.Context, benchmarks []*benchmark.Benchmark) ([]*benchmark.Benchmark, error) {
	if l.freshness == nil {
		return benchmarks, nil
	}

	kept := make([]*benchmark.Benchmark, 0, len(benchmarks))

	for _, b := range benchmarks {
		if b.Frequency <= 0 {
			kept = append(kept, b)

			continue
		}

		last, ok, err := l.freshness.LastSuccessfulRun(ctx, b.UniqueName, b.Environment)
		if err != nil {
			return nil, fmt.Errorf("checking last run of %s: %w", b.UniqueName, err)
		}

		if ok && l.now().Sub(last) <= b.Frequency {
			l.log.WithFields(logrus.Fields{
				"benchmark": b.UniqueName,
				"last_run":  last,
			}).Info("Skipping recently tested benchmark")

			continue
		}

		kept = append(kept, b)
	}

	return kept, nil
}
