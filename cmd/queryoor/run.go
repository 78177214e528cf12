package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/ethpandaops/queryoor/pkg/executor"
	"github.com/ethpandaops/queryoor/pkg/macro"
	"github.com/ethpandaops/queryoor/pkg/reporter"
	"github.com/ethpandaops/queryoor/pkg/runner"
	"github.com/ethpandaops/queryoor/pkg/stats"
	"github.com/ethpandaops/queryoor/pkg/timing"
	"github.com/ethpandaops/queryoor/pkg/upload"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const runIDLayout = "20060102T150405"

var sequenceIDs []string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the benchmark suite",
	Long: `Load the configured benchmarks and run them against their datasources,
reporting results to the log, the results directory and the results store.`,
	RunE: runSuite,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringSliceVar(&sequenceIDs, "sequence-id", nil,
		"Execution sequence ids (comma-separated or repeated flag), overrides benchmark.execution_sequence_ids")
}

func runSuite(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup context with signal handling.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := time.Now().UTC().Format(runIDLayout)
	resultsDir := filepath.Join(cfg.Results.Dir, runID)

	log.WithFields(logrus.Fields{
		"run_id":      runID,
		"results_dir": resultsDir,
	}).Info("Starting queryoor")

	var uploader upload.Uploader

	if cfg.Results.Upload.S3.Enabled {
		uploader, err = upload.NewS3Uploader(log, &cfg.Results.Upload.S3)
		if err != nil {
			return fmt.Errorf("creating S3 uploader: %w", err)
		}

		if err := uploader.Preflight(ctx); err != nil {
			return fmt.Errorf("S3 preflight: %w", err)
		}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	seqs := sequenceIDs
	if len(seqs) == 0 {
		seqs = cfg.Benchmark.ExecutionSequenceIDs
	}

	if len(seqs) == 0 {
		seqs = []string{runID}
	}

	benchmarks, err := newLoader(cfg, st).LoadBenchmarks(ctx, seqs)
	if err != nil {
		return fmt.Errorf("loading benchmarks: %w", err)
	}

	provider := datasource.NewProvider(log, cfg.DataSources)
	if err := provider.Start(ctx); err != nil {
		return fmt.Errorf("starting datasources: %w", err)
	}

	defer func() {
		if err := provider.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop datasources")
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Metrics.Prometheus.Enabled {
		shutdown, err := serveMetrics(cfg.Metrics.Prometheus.Listen, registry)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	synchronizer := timing.NewSynchronizer(log, &timing.Config{
		CollectionEnabled: cfg.Metrics.CollectionEnabled,
		Resolution:        cfg.Metrics.Resolution,
	})

	var cutOff time.Duration
	if cfg.Metrics.CollectionEnabled {
		cutOff = synchronizer.CutOffThreshold()
	}

	listeners := []reporter.Listener{
		reporter.NewLoggingListener(log),
		reporter.NewMetricsListener(registry),
		reporter.NewResultsListener(log, resultsDir, cutOff),
	}

	if st != nil {
		var reader stats.Reader
		if cfg.Metrics.HostStats {
			reader = stats.NewHostReader(log)
		}

		listeners = append(listeners, reporter.NewStoreListener(log, st, reader))
	}

	statusReporter := reporter.NewStatusReporter(log, listeners...)
	if err := statusReporter.Start(ctx); err != nil {
		return fmt.Errorf("starting reporter: %w", err)
	}

	defer func() {
		if err := statusReporter.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop reporter")
		}
	}()

	macros := macro.NewService(log,
		macro.NewShellDriver(log, cfg.Macros.Definitions),
		macro.NewQueryDriver(log, cfg.Macros.Definitions, provider),
	)

	exec := executor.NewExecutor(log, provider, macros, statusReporter, synchronizer)

	r := runner.NewRunner(log, &runner.Config{
		TimeLimit:         cfg.Benchmark.TimeLimit,
		ReportingTimeout:  cfg.Benchmark.ReportingTimeout,
		BeforeAllMacros:   cfg.Macros.BeforeAll,
		AfterAllMacros:    cfg.Macros.AfterAll,
		HealthCheckMacros: cfg.Macros.HealthCheck,
	}, exec, macros, statusReporter)

	_, runErr := r.Run(ctx, benchmarks)

	if uploader != nil {
		uploadResults(ctx, uploader, resultsDir)
	}

	return suiteError(runErr)
}

// suiteError logs every failure cause of a failed suite and returns a
// short summary error.
func suiteError(err error) error {
	if err == nil {
		return nil
	}

	var failed *runner.FailedSuiteError
	if !errors.As(err, &failed) {
		return fmt.Errorf("running suite: %w", err)
	}

	var causes *multierror.Error
	if errors.As(failed.Causes(), &causes) {
		for _, cause := range causes.Errors {
			log.WithError(cause).Error("Benchmark failure")
		}
	}

	return failed
}

func uploadResults(ctx context.Context, uploader upload.Uploader, dir string) {
	if _, err := os.Stat(dir); err != nil {
		log.WithField("dir", dir).Warn("No results to upload")

		return
	}

	log.WithField("dir", dir).Info("Uploading results")

	if err := uploader.Upload(ctx, dir); err != nil {
		log.WithError(err).Error("Failed to upload results")
	}
}

// serveMetrics exposes the registry on /metrics until the returned
// function is called.
func serveMetrics(listen string, gatherer prometheus.Gatherer) (func(), error) {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server error")
		}
	}()

	log.WithField("listen", listen).Info("Metrics server started")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("Metrics server shutdown error")
		}
	}, nil
}
