package timing

import (
	"context"
	"testing"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynchronizer(cfg *Config) (*synchronizer, *[]time.Duration) {
	waits := make([]time.Duration, 0, 2)

	s, _ := NewSynchronizer(logrus.New(), cfg).(*synchronizer)
	s.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)

		return nil
	}

	return s, &waits
}

func resultFor(concurrency int) *benchmark.ExecutionResult {
	b := &benchmark.Benchmark{Name: "b", Concurrency: concurrency}

	return &benchmark.ExecutionResult{
		Execution: &benchmark.Execution{Benchmark: b, Query: &benchmark.Query{Name: "q"}},
	}
}

func TestSynchronizer_Waits(t *testing.T) {
	tests := []struct {
		name              string
		enabled           bool
		concurrency       int
		wantQueryWait     bool
		wantBenchmarkWait bool
	}{
		{name: "disabled serial", enabled: false, concurrency: 1},
		{name: "disabled concurrent", enabled: false, concurrency: 4},
		{name: "enabled serial", enabled: true, concurrency: 1, wantQueryWait: true},
		{name: "enabled concurrent", enabled: true, concurrency: 4, wantBenchmarkWait: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, waits := newTestSynchronizer(&Config{
				CollectionEnabled: tt.enabled,
				Resolution:        5 * time.Second,
			})

			result := resultFor(tt.concurrency)

			require.NoError(t, s.AfterQuery(context.Background(), result))

			if tt.wantQueryWait {
				require.Len(t, *waits, 1)
				assert.Equal(t, 10*time.Second, (*waits)[0])
			} else {
				assert.Empty(t, *waits)
			}

			*waits = (*waits)[:0]

			require.NoError(t, s.AfterBenchmark(context.Background(), result.Execution.Benchmark))

			if tt.wantBenchmarkWait {
				require.Len(t, *waits, 1)
				assert.Equal(t, 10*time.Second, (*waits)[0])
			} else {
				assert.Empty(t, *waits)
			}
		})
	}
}

func TestSynchronizer_CutOffThreshold(t *testing.T) {
	s := NewSynchronizer(logrus.New(), &Config{Resolution: 10 * time.Second})

	assert.Equal(t, 13*time.Second, s.CutOffThreshold())
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := sleepContext(ctx, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
