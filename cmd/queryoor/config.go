package main

import (
	"context"
	"fmt"

	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/ethpandaops/queryoor/pkg/loader"
	"github.com/ethpandaops/queryoor/pkg/store"
	"github.com/sirupsen/logrus"
)

// loadConfig loads and validates the configuration files and applies the
// configured log level unless --log-level was given.
func loadConfig() (*config.Config, error) {
	if len(cfgFiles) == 0 {
		return nil, fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if logLevel == "" {
		level, err := logrus.ParseLevel(cfg.Global.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid global.log_level %q: %w", cfg.Global.LogLevel, err)
		}

		log.SetLevel(level)
	}

	return cfg, nil
}

// openStore starts the results store. It returns nil when no results
// database is configured.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Results.Database.Driver == "" {
		return nil, nil
	}

	st := store.NewStore(log, &cfg.Results.Database)
	if err := st.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting results store: %w", err)
	}

	return st, nil
}

func closeStore(st store.Store) {
	if st == nil {
		return
	}

	if err := st.Stop(); err != nil {
		log.WithError(err).Warn("Failed to close results store")
	}
}

// newLoader builds the benchmark loader. The store backs the frequency
// check when one is configured.
func newLoader(cfg *config.Config, st store.Store) loader.Loader {
	var freshness loader.FreshnessChecker
	if st != nil {
		freshness = st
	}

	return loader.NewLoader(log, &loader.Config{
		BenchmarksDir:         cfg.Benchmark.BenchmarksDir,
		SQLDir:                cfg.Benchmark.SQLDir,
		Environment:           cfg.Global.Environment,
		ActiveBenchmarks:      cfg.Benchmark.ActiveBenchmarks,
		ActiveVariables:       cfg.Benchmark.ActiveVariables,
		FrequencyCheckEnabled: cfg.Benchmark.FrequencyCheckEnabled,
	}, freshness)
}
