package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/queryoor/pkg/benchmark"
	"github.com/sirupsen/logrus"
)

// StatusReporter fans benchmark lifecycle events out to listeners. Report
// calls never block on listeners; each returns a Handle that completes once
// every listener has processed the event.
type StatusReporter interface {
	Start(ctx context.Context) error
	Stop() error

	ReportBenchmarkStarted(b *benchmark.Benchmark) *Handle
	ReportBenchmarkFinished(result *benchmark.BenchmarkResult) *Handle
	ReportExecutionStarted(execution *benchmark.Execution) *Handle
	ReportExecutionFinished(result *benchmark.ExecutionResult) *Handle
	ReportThroughputGroupFinished(group *benchmark.ThroughputGroupResult) *Handle

	// ProcessCompleted drops completed handles without blocking, logs
	// their errors and returns how many were processed.
	ProcessCompleted() int

	// AwaitAll blocks until every outstanding handle completes or the
	// timeout elapses.
	AwaitAll(timeout time.Duration) error
}

// Compile-time interface check.
var _ StatusReporter = (*statusReporter)(nil)

type statusReporter struct {
	log         logrus.FieldLogger
	dispatchers []*dispatcher

	mu      sync.Mutex
	pending []*Handle

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewStatusReporter creates a new StatusReporter for the given listeners.
func NewStatusReporter(log logrus.FieldLogger, listeners ...Listener) StatusReporter {
	dispatchers := make([]*dispatcher, 0, len(listeners))
	for _, l := range listeners {
		dispatchers = append(dispatchers, newDispatcher(l))
	}

	return &statusReporter{
		log:         log.WithField("component", "reporter"),
		dispatchers: dispatchers,
		pending:     make([]*Handle, 0, 64),
		stop:        make(chan struct{}),
	}
}

// Start launches one delivery goroutine per listener.
func (r *statusReporter) Start(ctx context.Context) error {
	for _, d := range r.dispatchers {
		r.wg.Add(1)

		go func() {
			defer r.wg.Done()

			d.run(ctx, r.stop)
		}()
	}

	r.log.WithField("listeners", len(r.dispatchers)).Debug("Status reporter started")

	return nil
}

// Stop delivers queued events and stops the delivery goroutines.
func (r *statusReporter) Stop() error {
	close(r.stop)
	r.wg.Wait()

	return nil
}

func (r *statusReporter) ReportBenchmarkStarted(b *benchmark.Benchmark) *Handle {
	return r.publish("benchmark_started", func(ctx context.Context, l Listener) error {
		return l.BenchmarkStarted(ctx, b)
	})
}

func (r *statusReporter) ReportBenchmarkFinished(result *benchmark.BenchmarkResult) *Handle {
	return r.publish("benchmark_finished", func(ctx context.Context, l Listener) error {
		return l.BenchmarkFinished(ctx, result)
	})
}

func (r *statusReporter) ReportExecutionStarted(execution *benchmark.Execution) *Handle {
	return r.publish("execution_started", func(ctx context.Context, l Listener) error {
		return l.ExecutionStarted(ctx, execution)
	})
}

func (r *statusReporter) ReportExecutionFinished(result *benchmark.ExecutionResult) *Handle {
	return r.publish("execution_finished", func(ctx context.Context, l Listener) error {
		return l.ExecutionFinished(ctx, result)
	})
}

func (r *statusReporter) ReportThroughputGroupFinished(
	group *benchmark.ThroughputGroupResult,
) *Handle {
	return r.publish("throughput_group_finished", func(ctx context.Context, l Listener) error {
		return l.ThroughputGroupFinished(ctx, group)
	})
}

func (r *statusReporter) publish(name string, fn deliverFunc) *Handle {
	h := newHandle(name, len(r.dispatchers))

	r.mu.Lock()
	r.pending = append(r.pending, h)
	r.mu.Unlock()

	for _, d := range r.dispatchers {
		d.push(event{handle: h, fn: fn})
	}

	return h
}

func (r *statusReporter) ProcessCompleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var processed int

	remaining := r.pending[:0]

	for _, h := range r.pending {
		select {
		case <-h.Done():
			processed++

			if err := h.Err(); err != nil {
				r.log.WithError(err).WithField("event", h.Event()).Error("Reporting failed")
			}
		default:
			remaining = append(remaining, h)
		}
	}

	clear(r.pending[len(remaining):])
	r.pending = remaining

	return processed
}

func (r *statusReporter) AwaitAll(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	r.mu.Lock()
	handles := make([]*Handle, len(r.pending))
	copy(handles, r.pending)
	r.mu.Unlock()

	for i, h := range handles {
		select {
		case <-h.Done():
		case <-timer.C:
			return fmt.Errorf("timed out after %s waiting for %d reporting tasks",
				timeout, len(handles)-i)
		}
	}

	r.ProcessCompleted()

	return nil
}

type deliverFunc func(ctx context.Context, l Listener) error

type event struct {
	handle *Handle
	fn     deliverFunc
}

// dispatcher delivers events to a single listener in FIFO order.
type dispatcher struct {
	listener Listener

	mu    sync.Mutex
	queue []event
	wake  chan struct{}
}

func newDispatcher(l Listener) *dispatcher {
	return &dispatcher{
		listener: l,
		queue:    make([]event, 0, 16),
		wake:     make(chan struct{}, 1),
	}
}

func (d *dispatcher) push(ev event) {
	d.mu.Lock()
	d.queue = append(d.queue, ev)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) pop() (event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return event{}, false
	}

	ev := d.queue[0]
	d.queue[0] = event{}
	d.queue = d.queue[1:]

	return ev, true
}

func (d *dispatcher) run(ctx context.Context, stop <-chan struct{}) {
	for {
		if ev, ok := d.pop(); ok {
			d.deliver(ctx, ev)

			continue
		}

		select {
		case <-d.wake:
		case <-stop:
			// Drain what was queued before stopping.
			for ev, ok := d.pop(); ok; ev, ok = d.pop() {
				d.deliver(ctx, ev)
			}

			return
		}
	}
}

func (d *dispatcher) deliver(ctx context.Context, ev event) {
	var err error

	func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("listener panicked: %v", p)
			}
		}()

		err = ev.fn(ctx, d.listener)
	}()

	ev.handle.complete(d.listener.Name(), err)
}
