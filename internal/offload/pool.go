// Package offload runs blocking calls (device I/O, subprocesses) on a
// bounded set of worker goroutines so the orchestration loops never stall
// on them.
package offload

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
)

// DefaultSize returns min(8, NumCPU+4).
func DefaultSize() int {
	return min(8, runtime.NumCPU()+4)
}

// Pool bounds the number of blocking calls in flight.
type Pool struct {
	size   int
	sem    *semaphore.Weighted
	busy   atomic.Int64

	// mu orders wg.Add against Shutdown's wg.Wait.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	log    *logger.Logger
}

// New creates a pool with the given number of workers. size <= 0 uses
// [DefaultSize].
func New(size int, log *logger.Logger) *Pool {
	if size <= 0 {
		size = DefaultSize()
	}
	log.Debug("offload: pool ready (workers=%d)", size)
	return &Pool{
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
		log:  log,
	}
}

// Size returns the worker limit.
func (p *Pool) Size() int { return p.size }

// Busy returns the number of calls currently running.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Submit runs fn on a pool worker and waits for its result. If ctx is done
// first, Submit returns ctx.Err() immediately; fn keeps running with a
// cancelled context and its result is discarded, so fn must clean up after
// itself when it sees ctx.Done().
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if p.isClosed() {
		return zero, domain.ErrPoolClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return zero, domain.ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)

	p.busy.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.sem.Release(1)
		defer p.busy.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("offload: panic: %v", r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Run is Submit for calls without a result.
func (p *Pool) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Submit(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Shutdown refuses new work and waits up to timeout for running calls.
// It reports whether everything finished in time. Calling it more than once
// is harmless.
func (p *Pool) Shutdown(timeout time.Duration) bool {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		p.log.Debug("offload: pool drained")
		return true
	case <-time.After(timeout):
		p.log.Warn("offload: %d call(s) still running after %s, abandoning", p.Busy(), timeout)
		return false
	}
}
