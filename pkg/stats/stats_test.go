package stats

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDelta(t *testing.T) {
	tests := []struct {
		name     string
		before   *Stats
		after    *Stats
		expected *Delta
	}{
		{name: "nil before", before: nil, after: &Stats{}, expected: nil},
		{name: "nil after", before: &Stats{}, after: nil, expected: nil},
		{
			name:   "cumulative counters",
			before: &Stats{Memory: 100, CPUBusy: 10, CPUTotal: 100, DiskRead: 5, DiskWriteOps: 1},
			after:  &Stats{Memory: 50, CPUBusy: 15, CPUTotal: 120, DiskRead: 15, DiskWriteOps: 4},
			expected: &Delta{
				MemoryDelta:    -50,
				CPUBusySeconds: 5,
				CPUUtilization: 25,
				DiskReadBytes:  10,
				DiskWriteOps:   3,
			},
		},
		{
			name:     "counter reset",
			before:   &Stats{CPUBusy: 10, DiskWrite: 100},
			after:    &Stats{CPUBusy: 1, DiskWrite: 10},
			expected: &Delta{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeDelta(tt.before, tt.after))
		})
	}
}

func TestDelta_Measurements(t *testing.T) {
	var nilDelta *Delta
	assert.Nil(t, nilDelta.Measurements())

	d := &Delta{MemoryDelta: 1024, CPUBusySeconds: 1.5}
	byName := make(map[string]float64, 7)

	for _, m := range d.Measurements() {
		byName[m.Name] = m.Value
	}

	assert.InDelta(t, 1024, byName["host_memory_delta"], 0.001)
	assert.InDelta(t, 1500, byName["host_cpu_busy"], 0.001)
}

func TestHostReader_ReadStats(t *testing.T) {
	r := NewHostReader(logrus.New())
	defer func() { _ = r.Close() }()

	s, err := r.ReadStats()
	require.NoError(t, err)
	assert.Positive(t, s.Memory)
	assert.Positive(t, s.CPUTotal)
	assert.Equal(t, "host", r.Type())
}
