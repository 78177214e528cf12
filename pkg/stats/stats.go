package stats

import (
	"github.com/ethpandaops/queryoor/pkg/benchmark"
)

// Stats contains a snapshot of host resource metrics.
type Stats struct {
	Memory       uint64  // Current memory usage (bytes)
	CPUBusy      float64 // Busy CPU time (seconds, cumulative)
	CPUTotal     float64 // Total CPU time (seconds, cumulative)
	DiskRead     uint64  // Disk read (bytes, cumulative)
	DiskWrite    uint64  // Disk write (bytes, cumulative)
	DiskReadOps  uint64  // Disk read operations (cumulative)
	DiskWriteOps uint64  // Disk write operations (cumulative)
}

// Delta represents the difference between two Stats snapshots.
type Delta struct {
	MemoryDelta    int64   // Can be negative if memory freed
	CPUBusySeconds float64 // Busy CPU time spent between snapshots
	CPUUtilization float64 // Busy share of CPU time, 0-100
	DiskReadBytes  uint64  // Disk read bytes delta
	DiskWriteBytes uint64  // Disk write bytes delta
	DiskReadOps    uint64  // Read I/O operations delta
	DiskWriteOps   uint64  // Write I/O operations delta
}

// Reader is the interface for reading host resource stats.
type Reader interface {
	// ReadStats returns current resource metrics for the host.
	ReadStats() (*Stats, error)
	// Close releases any resources held by the reader.
	Close() error
	// Type returns the reader implementation type for logging.
	Type() string
}

// ComputeDelta calculates the difference between after and before stats.
func ComputeDelta(before, after *Stats) *Delta {
	if before == nil || after == nil {
		return nil
	}

	delta := &Delta{
		MemoryDelta: int64(after.Memory) - int64(before.Memory),
	}

	// CPU is cumulative, so after should be >= before.
	if after.CPUBusy >= before.CPUBusy {
		delta.CPUBusySeconds = after.CPUBusy - before.CPUBusy
	}

	if total := after.CPUTotal - before.CPUTotal; total > 0 {
		delta.CPUUtilization = 100 * delta.CPUBusySeconds / total
	}

	// Disk metrics are cumulative.
	if after.DiskRead >= before.DiskRead {
		delta.DiskReadBytes = after.DiskRead - before.DiskRead
	}

	if after.DiskWrite >= before.DiskWrite {
		delta.DiskWriteBytes = after.DiskWrite - before.DiskWrite
	}

	if after.DiskReadOps >= before.DiskReadOps {
		delta.DiskReadOps = after.DiskReadOps - before.DiskReadOps
	}

	if after.DiskWriteOps >= before.DiskWriteOps {
		delta.DiskWriteOps = after.DiskWriteOps - before.DiskWriteOps
	}

	return delta
}

// Measurements converts the delta into benchmark measurements.
func (d *Delta) Measurements() []benchmark.Measurement {
	if d == nil {
		return nil
	}

	return []benchmark.Measurement{
		{Name: "host_memory_delta", Unit: benchmark.UnitBytes, Value: float64(d.MemoryDelta)},
		{Name: "host_cpu_busy", Unit: benchmark.UnitMilliseconds, Value: d.CPUBusySeconds * 1000},
		{Name: "host_cpu_utilization", Unit: benchmark.UnitPercent, Value: d.CPUUtilization},
		{Name: "host_disk_read", Unit: benchmark.UnitBytes, Value: float64(d.DiskReadBytes)},
		{Name: "host_disk_write", Unit: benchmark.UnitBytes, Value: float64(d.DiskWriteBytes)},
		{Name: "host_disk_read_ops", Unit: benchmark.UnitNone, Value: float64(d.DiskReadOps)},
		{Name: "host_disk_write_ops", Unit: benchmark.UnitNone, Value: float64(d.DiskWriteOps)},
	}
}
