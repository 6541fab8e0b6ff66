package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/sducournau/filter-mate-sub019/internal/recovery"
)

// Pool runs tasks on a bounded goroutine pool. A panicking task is logged
// and never takes the pool down.
type Pool struct {
	pool   *ants.Pool
	logger *slog.Logger

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewPool creates a runner with at most size concurrent workers.
// If logger is nil, slog.Default() is used.
func NewPool(size int, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("worker pool: %w", err)
	}
	return &Pool{
		pool:   p,
		logger: logger.With(slog.String("component", "runner")),
	}, nil
}

// Submit implements Runner. The task starts as soon as a worker is free;
// Submit itself blocks only while the pool queue is saturated.
func (p *Pool) Submit(ctx context.Context, task Task) (*Handle, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	err := p.pool.Submit(func() {
		defer p.wg.Done()
		defer close(h.done)
		defer cancel()
		recovery.Recover(p.logger, "task", func() {
			task(ctx)
		})
	})
	if err != nil {
		p.wg.Done()
		cancel()
		close(h.done)
		return nil, fmt.Errorf("submit task: %w", err)
	}
	return h, nil
}

// Close implements Runner. Blocks until all accepted tasks have finished.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	p.pool.Release()
	return nil
}

var _ Runner = (*Pool)(nil)
var _ Runner = (*Sync)(nil)
