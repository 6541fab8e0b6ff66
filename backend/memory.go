package backend

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/expr"
)

// Feature is one row of the generic feature store.
type Feature struct {
	ID       uint64
	Geometry orb.Geometry
	Attrs    map[string]any
}

// Memory is the generic feature-store strategy. It holds features in
// process, renders the neutral expression dialect, and evaluates it with
// planar geometry operations. It has no spatial index: every execution
// materializes the full candidate set before filtering, which is the cost
// asymmetry the optimizer exists to soften.
type Memory struct {
	logger *slog.Logger

	mu       sync.RWMutex
	features map[string][]Feature
}

// NewMemory creates an empty generic feature store.
// If logger is nil, slog.Default() is used.
func NewMemory(logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Memory{
		logger:   logger.With(slog.String("backend", "memory")),
		features: make(map[string][]Feature),
	}
}

// Load replaces the feature set of a collection.
func (m *Memory) Load(collectionID string, features []Feature) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.features[collectionID] = features
}

// Kind implements Strategy.
func (m *Memory) Kind() catalog.BackendKind { return catalog.KindMemory }

// Render implements Strategy.
func (m *Memory) Render(e expr.Expression, meta *catalog.Collection) (string, error) {
	return expr.Render(e, catalog.KindMemory, meta)
}

// Execute implements Strategy. Parses the neutral dialect back into a
// predicate and applies it to a materialized copy of the collection.
func (m *Memory) Execute(ctx context.Context, rendered string, meta *catalog.Collection) (*ExecutionResult, error) {
	start := time.Now()

	pred, err := compileFilter(rendered, meta)
	if err != nil {
		return nil, &QueryError{Rendered: rendered, Err: err}
	}

	// Materialization step: snapshot the candidate set so evaluation does
	// not hold the store lock.
	m.mu.RLock()
	candidates := make([]Feature, len(m.features[meta.ID]))
	copy(candidates, m.features[meta.ID])
	m.mu.RUnlock()

	ids := make(map[uint64]struct{})
	for i := range candidates {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ok, err := pred(&candidates[i])
		if err != nil {
			return nil, &QueryError{Rendered: rendered, Err: err}
		}
		if ok {
			ids[candidates[i].ID] = struct{}{}
		}
	}

	m.logger.Debug("filter executed",
		slog.String("collection", meta.ID),
		slog.Int("candidates", len(candidates)),
		slog.Int("matches", len(ids)),
	)

	return &ExecutionResult{
		FeatureIDs: ids,
		Count:      uint64(len(ids)),
		ElapsedMs:  uint64(time.Since(start).Milliseconds()),
	}, nil
}

// Cleanup implements Strategy. The memory backend creates no ephemeral
// objects; cleanup is a no-op.
func (m *Memory) Cleanup(ctx context.Context, meta *catalog.Collection) error {
	return nil
}

var _ Strategy = (*Memory)(nil)
var _ Strategy = (*Postgres)(nil)
var _ Strategy = (*DuckDB)(nil)

func init() {
	// Guard against accidental divergence between the dialect tables and
	// the evaluator's function set.
	for _, p := range []expr.SpatialPredicate{expr.Intersects, expr.Contains, expr.Within, expr.Disjoint, expr.Equals} {
		if _, ok := spatialEvaluators[p.String()]; !ok {
			panic(fmt.Sprintf("memory evaluator missing predicate %s", p))
		}
	}
}
