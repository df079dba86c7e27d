package core

// pool.go implements the process-wide bounded executor that runs insert calls.
//
// There are no long-lived workers: each submitted task runs on its own
// goroutine once one of the weighted semaphore's slots is free. The pool is
// created once per process, shared by every Inserter, and drained at
// shutdown: Drain stops new submissions and blocks until every running task
// returns.

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the default number of concurrently running insert calls.
const DefaultPoolSize = 100

// WorkerPool is a bounded executor: it runs each submitted task on a new
// goroutine, at most size at a time.
type WorkerPool struct {
	sem  *semaphore.Weighted
	size int

	wg sync.WaitGroup

	mu     sync.RWMutex
	active int
	closed bool
}

// NewWorkerPool creates a pool that runs at most size tasks at once.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &WorkerPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Submit schedules task on the pool. It blocks while all slots are taken
// and returns ctx.Err() if ctx ends first, or ErrPoolClosed after Drain.
// The task itself does not observe ctx.
func (p *WorkerPool) Submit(ctx context.Context, task func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.wg.Done()
		return err
	}

	p.mu.Lock()
	p.active++
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
			p.sem.Release(1)
			p.wg.Done()
		}()
		task()
	}()
	return nil
}

// ActiveCount returns the number of currently running tasks.
func (p *WorkerPool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.active
}

// Size returns the maximum number of concurrently running tasks.
func (p *WorkerPool) Size() int {
	return p.size
}

// Drain rejects further submissions and blocks until running tasks finish
// or ctx is cancelled. Calling Drain more than once is safe.
func (p *WorkerPool) Drain(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	active := p.active
	p.mu.Unlock()

	if active > 0 {
		slog.Info("draining worker pool", "active", active)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		slog.Warn("worker pool did not drain in time", "active", p.ActiveCount())
		return ctx.Err()
	}
}

// PoolStatus is a snapshot of the pool's state.
type PoolStatus struct {
	Active    int  `json:"active"`
	Available int  `json:"available"`
	Size      int  `json:"size"`
	Closed    bool `json:"closed"`
}

// Status returns the current pool state for monitoring.
func (p *WorkerPool) Status() PoolStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStatus{
		Active:    p.active,
		Available: p.size - p.active,
		Size:      p.size,
		Closed:    p.closed,
	}
}
