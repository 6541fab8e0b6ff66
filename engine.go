package filtermate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v5"

	"github.com/sducournau/filter-mate-sub019/backend"
	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/expr"
	"github.com/sducournau/filter-mate-sub019/history"
	"github.com/sducournau/filter-mate-sub019/internal/recovery"
	"github.com/sducournau/filter-mate-sub019/optimizer"
	"github.com/sducournau/filter-mate-sub019/runner"
)

// FilterResult reports one confirmed filter application.
type FilterResult struct {
	// State is the history state recorded for this application, nil when
	// the operation left the collection unfiltered.
	State *history.State

	// Count is the number of matching features.
	Count uint64

	// ElapsedMs is the backend execution time in milliseconds.
	ElapsedMs uint64

	// Optimization tags the rewrite applied while combining with the
	// prior filter.
	Optimization optimizer.OptimizationType

	// EstimatedSpeedup is the optimizer's speedup estimate for the
	// rewrite, 1 when no rewrite fired.
	EstimatedSpeedup float64
}

// Engine orchestrates filter application across collections: it resolves
// collection metadata, renders and optimizes expressions, executes them on
// the right backend with retry, and tracks per-collection undo/redo history.
//
// All operations on one collection are serialized; operations on different
// collections proceed concurrently.
type Engine struct {
	cfg    Config
	opt    *optimizer.Optimizer
	codec  *history.Codec
	store  history.Store
	run    runner.Runner
	logger *slog.Logger

	locks sync.Map // collection ID -> *sync.Mutex

	mu        sync.Mutex
	histories map[string]*history.History
	closed    bool
}

// New creates an Engine from the given configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	logger := cfg.logger()

	opt, err := optimizer.New(optimizer.Config{
		CacheSize:    cfg.CacheSize,
		RangeMinSize: cfg.RangeMinSize,
		SpeedupCap:   cfg.SpeedupCap,
	}, logger)
	if err != nil {
		return nil, err
	}

	codec, err := history.NewCodec()
	if err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		store = history.NewMemStore()
	}
	run := cfg.Runner
	if run == nil {
		run = &runner.Sync{}
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = defaultRetryMaxAttempts
	}

	return &Engine{
		cfg:       cfg,
		opt:       opt,
		codec:     codec,
		store:     store,
		run:       run,
		logger:    logger.With(slog.String("component", "engine")),
		histories: make(map[string]*history.History),
	}, nil
}

// Apply renders, optimizes and executes an expression against the
// collection, narrowing any current filter (logical AND). The history gains
// a new state only after the backend confirms execution; a failed execution
// leaves history untouched.
func (e *Engine) Apply(ctx context.Context, collectionID string, ex expr.Expression) (*FilterResult, error) {
	if ex == nil {
		return nil, errors.New("expression is nil")
	}
	meta, strat, err := e.resolve(ctx, collectionID)
	if err != nil {
		return nil, err
	}

	lock := e.lockFor(collectionID)
	lock.Lock()
	defer lock.Unlock()

	h := e.historyFor(collectionID)

	var old string
	var priorRows uint64
	if cur := h.Current(); cur != nil {
		old = cur.Rendered
		if cur.ResultCount != nil {
			priorRows = *cur.ResultCount
		}
	}

	res, err := e.opt.Combine(old, ex, expr.OpAnd, meta, meta.Kind, priorRows)
	if err != nil {
		return nil, err
	}

	exec, err := e.execute(ctx, strat, res.Rewritten, meta)
	if err != nil {
		return nil, err
	}

	// Prefer the backend's materialized form as the recorded text so the
	// next combine can re-target the acceleration object.
	applied := res.Rewritten
	if exec.Materialized != "" {
		applied = exec.Materialized
	}

	count := exec.Count
	state := history.State{
		Raw:          ex,
		Rendered:     applied,
		Kind:         meta.Kind,
		Seq:          h.NextSeq(),
		ResultCount:  &count,
		Optimization: res.Type,
	}
	if err := h.Apply(state); err != nil {
		return nil, err
	}

	e.logger.Info("filter applied",
		slog.String("collection", collectionID),
		slog.Uint64("matches", exec.Count),
		slog.String("optimization", string(res.Type)),
		slog.Uint64("elapsed_ms", exec.ElapsedMs),
	)

	return &FilterResult{
		State:            h.Current(),
		Count:            exec.Count,
		ElapsedMs:        exec.ElapsedMs,
		Optimization:     res.Type,
		EstimatedSpeedup: res.EstimatedSpeedup,
	}, nil
}

// ApplyAsync schedules Apply on the engine's runner. The callback receives
// the outcome; it may be nil. The returned handle cancels or awaits the job.
func (e *Engine) ApplyAsync(ctx context.Context, collectionID string, ex expr.Expression, callback func(*FilterResult, error)) (*runner.Handle, error) {
	return e.run.Submit(ctx, func(ctx context.Context) {
		res, err := recovery.RecoverToValue(e.logger, "Apply", func() (*FilterResult, error) {
			return e.Apply(ctx, collectionID, ex)
		})
		if callback != nil {
			callback(res, err)
		}
	})
}

// Undo steps the collection back to its previous filter state and re-executes
// it. Returns the state now current (nil when the collection became
// unfiltered) and false when there was nothing to undo. A failed re-execution
// restores the cursor, so history and the live collection never diverge.
func (e *Engine) Undo(ctx context.Context, collectionID string) (*FilterResult, bool, error) {
	meta, strat, err := e.resolve(ctx, collectionID)
	if err != nil {
		return nil, false, err
	}

	lock := e.lockFor(collectionID)
	lock.Lock()
	defer lock.Unlock()

	h := e.historyFor(collectionID)
	target, ok, err := h.Undo()
	if err != nil || !ok {
		return nil, ok, err
	}
	if target == nil {
		return &FilterResult{EstimatedSpeedup: 1, Optimization: optimizer.OptNone}, true, nil
	}

	exec, err := e.execute(ctx, strat, target.Rendered, meta)
	if err != nil {
		if _, _, rerr := h.Redo(); rerr != nil {
			return nil, false, errors.Join(err, rerr)
		}
		return nil, false, err
	}
	return &FilterResult{
		State:            target,
		Count:            exec.Count,
		ElapsedMs:        exec.ElapsedMs,
		Optimization:     target.Optimization,
		EstimatedSpeedup: 1,
	}, true, nil
}

// Redo re-applies the filter state undone last. Returns false when there is
// nothing to redo. A failed re-execution restores the cursor.
func (e *Engine) Redo(ctx context.Context, collectionID string) (*FilterResult, bool, error) {
	meta, strat, err := e.resolve(ctx, collectionID)
	if err != nil {
		return nil, false, err
	}

	lock := e.lockFor(collectionID)
	lock.Lock()
	defer lock.Unlock()

	h := e.historyFor(collectionID)
	target, ok, err := h.Redo()
	if err != nil || !ok {
		return nil, ok, err
	}

	exec, err := e.execute(ctx, strat, target.Rendered, meta)
	if err != nil {
		if _, _, uerr := h.Undo(); uerr != nil {
			return nil, false, errors.Join(err, uerr)
		}
		return nil, false, err
	}
	return &FilterResult{
		State:            target,
		Count:            exec.Count,
		ElapsedMs:        exec.ElapsedMs,
		Optimization:     target.Optimization,
		EstimatedSpeedup: 1,
	}, true, nil
}

// ClearFilter removes the current filter, recording the unfiltered state as
// an undoable step. Ephemeral backend objects are kept: earlier history
// states may reference them (the server backend's view-membership form), so
// they are released only on Close, once the history goes away with them.
func (e *Engine) ClearFilter(ctx context.Context, collectionID string) error {
	meta, _, err := e.resolve(ctx, collectionID)
	if err != nil {
		return err
	}

	lock := e.lockFor(collectionID)
	lock.Lock()
	defer lock.Unlock()

	h := e.historyFor(collectionID)
	if cur := h.Current(); cur == nil || cur.Rendered == "" {
		return nil
	}
	return h.Apply(history.State{
		Kind:         meta.Kind,
		Seq:          h.NextSeq(),
		Optimization: optimizer.OptNone,
	})
}

// Current returns the collection's currently applied filter state, nil when
// unfiltered.
func (e *Engine) Current(collectionID string) *history.State {
	lock := e.lockFor(collectionID)
	lock.Lock()
	defer lock.Unlock()
	return e.historyFor(collectionID).Current()
}

// SaveHistory persists the collection's history snapshot to the configured
// store.
func (e *Engine) SaveHistory(ctx context.Context, collectionID string) error {
	lock := e.lockFor(collectionID)
	lock.Lock()
	snap := e.historyFor(collectionID).Snapshot()
	lock.Unlock()

	data, err := e.codec.Encode(snap)
	if err != nil {
		return err
	}
	return e.store.Save(ctx, collectionID, data)
}

// LoadHistory restores the collection's history from the configured store.
// Returns false when no snapshot exists. The current filter is not
// re-executed; callers redo or apply to reach a live state.
func (e *Engine) LoadHistory(ctx context.Context, collectionID string) (bool, error) {
	data, ok, err := e.store.Load(ctx, collectionID)
	if err != nil || !ok {
		return ok, err
	}
	snap, err := e.codec.Decode(data)
	if err != nil {
		return false, err
	}

	lock := e.lockFor(collectionID)
	lock.Lock()
	defer lock.Unlock()
	return true, e.historyFor(collectionID).Restore(snap)
}

// Close shuts the engine down: the runner drains, backend ephemeral objects
// for known collections are released, and codec resources are freed.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	ids := make([]string, 0, len(e.histories))
	for id := range e.histories {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	err := e.run.Close()

	for _, id := range ids {
		meta, strat, rerr := e.lookup(ctx, id)
		if rerr != nil {
			err = errors.Join(err, rerr)
			continue
		}
		if cerr := strat.Cleanup(ctx, meta); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}

	return errors.Join(err, e.codec.Close())
}

// execute runs the rendered text on the strategy, retrying transient backend
// failures with exponential backoff. Query rejections and context errors are
// permanent.
func (e *Engine) execute(ctx context.Context, strat backend.Strategy, rendered string, meta *catalog.Collection) (*backend.ExecutionResult, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (*backend.ExecutionResult, error) {
		attempt++
		res, err := strat.Execute(ctx, rendered, meta)
		if err != nil {
			if errors.Is(err, backend.ErrBackendUnavailable) {
				e.logger.Warn("backend unavailable, retrying",
					slog.String("collection", meta.ID),
					slog.Int("attempt", attempt),
					slog.String("error", err.Error()),
				)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return res, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(e.cfg.RetryMaxAttempts),
	)
}

func (e *Engine) resolve(ctx context.Context, collectionID string) (*catalog.Collection, backend.Strategy, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, nil, ErrClosed
	}
	return e.lookup(ctx, collectionID)
}

// lookup resolves metadata and strategy without the closed check, so Close
// can still reach backends for cleanup.
func (e *Engine) lookup(ctx context.Context, collectionID string) (*catalog.Collection, backend.Strategy, error) {
	meta, err := e.cfg.Catalog.Collection(ctx, collectionID)
	if err != nil {
		return nil, nil, err
	}
	strat, err := backend.ForKind(e.cfg.Strategies, meta.Kind)
	if err != nil {
		return nil, nil, err
	}
	return meta, strat, nil
}

func (e *Engine) lockFor(collectionID string) *sync.Mutex {
	v, _ := e.locks.LoadOrStore(collectionID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (e *Engine) historyFor(collectionID string) *history.History {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.histories[collectionID]
	if !ok {
		h = history.New(e.cfg.MaxHistoryDepth)
		e.histories[collectionID] = h
	}
	return h
}
