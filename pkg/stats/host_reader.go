package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

const readTimeout = 5 * time.Second

// hostReader reads host-wide stats through gopsutil.
type hostReader struct {
	log logrus.FieldLogger
}

// Ensure interface compliance.
var _ Reader = (*hostReader)(nil)

// NewHostReader creates a reader for host-wide CPU, memory and disk stats.
func NewHostReader(log logrus.FieldLogger) Reader {
	return &hostReader{
		log: log.WithField("component", "host-stats"),
	}
}

// ReadStats implements Reader.
func (r *hostReader) ReadStats() (*Stats, error) {
	ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
	defer cancel()

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading memory stats: %w", err)
	}

	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("reading cpu stats: %w", err)
	}

	s := &Stats{Memory: vm.Used}

	for _, t := range times {
		busy := t.User + t.System + t.Nice + t.Iowait + t.Irq + t.Softirq + t.Steal
		s.CPUBusy += busy
		s.CPUTotal += busy + t.Idle
	}

	// Disk counters are unavailable in some sandboxes.
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		r.log.WithError(err).Debug("Disk counters unavailable")

		return s, nil
	}

	for _, c := range counters {
		s.DiskRead += c.ReadBytes
		s.DiskWrite += c.WriteBytes
		s.DiskReadOps += c.ReadCount
		s.DiskWriteOps += c.WriteCount
	}

	return s, nil
}

// Close implements Reader.
func (r *hostReader) Close() error {
	return nil
}

// Type implements Reader.
func (r *hostReader) Type() string {
	return "host"
}
