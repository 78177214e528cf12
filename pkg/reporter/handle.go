package reporter

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Handle tracks delivery of one event to every listener.
type Handle struct {
	event string
	done  chan struct{}

	mu        sync.Mutex
	remaining int
	errs      *multierror.Error
}

func newHandle(event string, listeners int) *Handle {
	h := &Handle{
		event:     event,
		done:      make(chan struct{}),
		remaining: listeners,
	}

	if listeners == 0 {
		close(h.done)
	}

	return h
}

// Event returns the name of the reported event.
func (h *Handle) Event() string {
	return h.event
}

// Done is closed once every listener has processed the event.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the aggregated listener errors. It is only meaningful after
// Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.errs.ErrorOrNil()
}

// Wait blocks until the event is processed or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Handle) complete(listener string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err != nil {
		h.errs = multierror.Append(h.errs, fmt.Errorf("%s: %w", listener, err))
	}

	h.remaining--
	if h.remaining == 0 {
		close(h.done)
	}
}
