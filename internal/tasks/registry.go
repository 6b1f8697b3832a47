// Package tasks tracks fire-and-forget background work (downloads, playback,
// voice search) so it can be cancelled and awaited at shutdown. A failing or
// panicking task is logged and never takes anything else down with it.
package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hammamikhairi/aura/internal/logger"
)

// Handle refers to one spawned task.
type Handle struct {
	Name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Done is closed when the task finishes.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the task's error once Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Cancel asks the task to stop.
func (h *Handle) Cancel() { h.cancel() }

// Registry is the set of in-flight tasks. Safe for concurrent use.
type Registry struct {
	log *logger.Logger

	mu      sync.Mutex
	live    map[*Handle]struct{}
	closed  bool
	stopped chan struct{}
	stopOK  bool
}

// New creates an empty registry.
func New(log *logger.Logger) *Registry {
	return &Registry{
		log:  log,
		live: make(map[*Handle]struct{}),
	}
}

// Go runs fn in its own goroutine under a context derived from ctx and keeps
// a handle until it finishes. Errors and panics are logged. After CancelAll
// the task is still started but with an already cancelled context.
func (r *Registry) Go(ctx context.Context, name string, fn func(ctx context.Context) error) *Handle {
	tctx, cancel := context.WithCancel(ctx)
	h := &Handle{Name: name, cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if r.closed {
		cancel()
	}
	r.live[h] = struct{}{}
	r.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				h.err = fmt.Errorf("task %s panicked: %v", name, rec)
			}
			if h.err != nil && tctx.Err() == nil {
				r.log.Warn("task %s failed: %v", name, h.err)
			} else if h.err != nil {
				r.log.Debug("task %s stopped: %v", name, h.err)
			}
			cancel()
			r.mu.Lock()
			delete(r.live, h)
			r.mu.Unlock()
			close(h.done)
		}()

		r.log.Debug("task %s started", name)
		h.err = fn(tctx)
	}()
	return h
}

// Len returns the number of tasks still running.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

// CancelAll cancels every live task and waits up to timeout for them to
// finish. It reports whether all of them did. Calling it again only waits
// for the first call's outcome.
func (r *Registry) CancelAll(timeout time.Duration) bool {
	r.mu.Lock()
	if r.closed {
		stopped := r.stopped
		r.mu.Unlock()
		<-stopped
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.stopOK
	}
	r.closed = true
	r.stopped = make(chan struct{})
	handles := make([]*Handle, 0, len(r.live))
	for h := range r.live {
		handles = append(handles, h)
	}
	r.mu.Unlock()

	for _, h := range handles {
		h.Cancel()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ok := true
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-timer.C:
			ok = false
		}
		if !ok {
			break
		}
	}
	if !ok {
		r.log.Warn("tasks: %d task(s) still running after %s", r.Len(), timeout)
	}

	r.mu.Lock()
	r.stopOK = ok
	close(r.stopped)
	r.mu.Unlock()
	return ok
}
