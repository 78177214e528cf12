package timing

import (
	"context"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/sirupsen/logrus"
)

const (
	// settleFactor is the number of sampling periods to wait so that the
	// external metrics store has closed the window of the last query.
	settleFactor = 2

	// Measurement windows read back from the metrics store are padded to
	// 1.3 sampling periods.
	cutOffNumerator   = 13
	cutOffDenominator = 10
)

// Config contains timing coordinator settings.
type Config struct {
	// CollectionEnabled turns the settle waits on.
	CollectionEnabled bool

	// Resolution is the sampling resolution of the external metrics store.
	Resolution time.Duration
}

// Synchronizer aligns query and benchmark boundaries with the sampling
// resolution of an external metrics store.
type Synchronizer interface {
	// AfterQuery blocks after a measured query of a serial benchmark.
	AfterQuery(ctx context.Context, result *benchmark.ExecutionResult) error

	// AfterBenchmark blocks before a concurrent benchmark is reported started.
	AfterBenchmark(ctx context.Context, b *benchmark.Benchmark) error

	// CutOffThreshold returns the padding applied to measurement windows.
	CutOffThreshold() time.Duration
}

// Compile-time interface check.
var _ Synchronizer = (*synchronizer)(nil)

type synchronizer struct {
	log   logrus.FieldLogger
	cfg   *Config
	sleep func(ctx context.Context, d time.Duration) error
}

// NewSynchronizer creates a new Synchronizer.
func NewSynchronizer(log logrus.FieldLogger, cfg *Config) Synchronizer {
	return &synchronizer{
		log:   log.WithField("component", "synchronizer"),
		cfg:   cfg,
		sleep: sleepContext,
	}
}

// AfterQuery waits for two sampling periods when the benchmark is serial.
func (s *synchronizer) AfterQuery(
	ctx context.Context,
	result *benchmark.ExecutionResult,
) error {
	if !result.Execution.Benchmark.IsSerial() {
		return nil
	}

	return s.settle(ctx)
}

// AfterBenchmark waits for two sampling periods when the benchmark is concurrent.
func (s *synchronizer) AfterBenchmark(ctx context.Context, b *benchmark.Benchmark) error {
	if !b.IsConcurrent() {
		return nil
	}

	return s.settle(ctx)
}

// CutOffThreshold returns 1.3 sampling periods.
func (s *synchronizer) CutOffThreshold() time.Duration {
	return s.cfg.Resolution * cutOffNumerator / cutOffDenominator
}

func (s *synchronizer) settle(ctx context.Context) error {
	if !s.cfg.CollectionEnabled || s.cfg.Resolution <= 0 {
		return nil
	}

	wait := settleFactor * s.cfg.Resolution

	s.log.WithField("wait", wait).Debug("Waiting for metrics sampling window")

	return s.sleep(ctx, wait)
}

// sleepContext sleeps for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
