package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/sirupsen/logrus"
)

// warmup runs the benchmark's prewarm runs without reporting. Failed
// queries are logged and discarded; macro and connection errors are not.
func (e *executor) warmup(ctx context.Context, b *benchmark.Benchmark, deadline time.Time) error {
	if b.PrewarmRuns == 0 {
		return nil
	}

	log := e.log.WithFields(logrus.Fields{
		"benchmark": b.UniqueName,
		"runs":      b.PrewarmRuns,
	})

	log.Info("Running warm-up")

	executions, err := e.runPhase(ctx, &phase{
		kind:      phaseWarmup,
		benchmark: b,
		runs:      b.PrewarmRuns,
		deadline:  deadline,
	})
	if err != nil {
		return fmt.Errorf("warming up: %w", err)
	}

	var failed int

	for _, execution := range executions {
		if !execution.Successful() {
			failed++
		}
	}

	if failed > 0 {
		log.WithField("failed", failed).Warn("Warm-up queries failed")
	}

	return nil
}
