// Package runner executes background filter jobs on a bounded worker pool.
// Jobs are plain functions taking a context; each submission gets a handle
// that can cancel the job and wait for it to finish.
package runner

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Submit after the runner has been closed.
var ErrClosed = errors.New("runner closed")

// Task is a unit of background work. It must honor ctx cancellation.
type Task func(ctx context.Context)

// Handle controls one submitted task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel requests the task stop. Safe to call more than once.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the task has finished.
func (h *Handle) Wait() { <-h.done }

// Done returns a channel closed when the task has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Runner schedules tasks for asynchronous execution.
type Runner interface {
	// Submit schedules a task. The returned handle cancels or awaits it.
	// Returns ErrClosed after Close.
	Submit(ctx context.Context, task Task) (*Handle, error)

	// Close stops accepting tasks and waits for running ones to finish.
	Close() error
}

// Sync runs every task inline on the submitting goroutine. Useful in tests
// and for callers that want synchronous semantics behind the same interface.
type Sync struct {
	mu     sync.Mutex
	closed bool
}

// Submit implements Runner.
func (s *Sync) Submit(ctx context.Context, task Task) (*Handle, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	task(ctx)
	cancel()
	close(h.done)
	return h, nil
}

// Close implements Runner.
func (s *Sync) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
