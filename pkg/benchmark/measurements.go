package benchmark

import (
	"slices"
	"time"
)

// Measurement units.
const (
	UnitMilliseconds  = "MILLISECONDS"
	UnitQueriesPerSec = "QUERY_PER_SECOND"
	UnitNone          = "NONE"
	UnitBytes         = "BYTES"
	UnitPercent       = "PERCENT"
)

// ResultMeasurements derives the standard measurements from a benchmark
// result: total duration, throughput, failure count and latency
// percentiles over successful executions.
func ResultMeasurements(r *BenchmarkResult) []Measurement {
	measurements := make([]Measurement, 0, 6)

	duration := r.Duration()
	measurements = append(measurements, Measurement{
		Name:  "duration",
		Unit:  UnitMilliseconds,
		Value: toMillis(duration),
	})

	succeeded := r.SuccessfulExecutions()
	if duration > 0 {
		measurements = append(measurements, Measurement{
			Name:  "throughput",
			Unit:  UnitQueriesPerSec,
			Value: float64(succeeded) / duration.Seconds(),
		})
	}

	measurements = append(measurements, Measurement{
		Name:  "failed_executions",
		Unit:  UnitNone,
		Value: float64(len(r.Executions) - succeeded),
	})

	latencies := make([]time.Duration, 0, succeeded)

	for _, e := range r.Executions {
		if e.Successful() {
			latencies = append(latencies, e.Duration())
		}
	}

	if len(latencies) == 0 {
		return measurements
	}

	slices.Sort(latencies)

	for _, p := range []struct {
		name string
		q    float64
	}{
		{"query_duration_p50", 0.50},
		{"query_duration_p90", 0.90},
		{"query_duration_max", 1.00},
	} {
		measurements = append(measurements, Measurement{
			Name:  p.name,
			Unit:  UnitMilliseconds,
			Value: toMillis(percentile(latencies, p.q)),
		})
	}

	return measurements
}

// percentile returns the nearest-rank percentile of a sorted slice.
func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(q*float64(len(sorted))+0.5) - 1
	idx = max(0, min(idx, len(sorted)-1))

	return sorted[idx]
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
