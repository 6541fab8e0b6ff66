// Package backend implements one filter execution strategy per backend kind:
// a PostGIS server store, an embedded DuckDB file store, and a generic
// in-process feature store. Each strategy renders the typed expression tree
// to its own dialect, executes it, and reports the matching feature IDs.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/expr"
)

// Ephemeral acceleration object name prefixes. Names are derived from a hash
// of the rendered text so identical requests detect and reuse prior objects.
const (
	// ViewPrefix names reusable materialized result-views on the server
	// backend.
	ViewPrefix = "filtermate_mv_"

	// TempPrefix names scoped temporary tables on the embedded backend.
	TempPrefix = "filtermate_tmp_"
)

// EphemeralName derives the deterministic object name for a rendered query.
func EphemeralName(prefix, rendered string) string {
	return fmt.Sprintf("%s%016x", prefix, xxh3.HashString(rendered))
}

// ErrBackendUnavailable indicates a transient failure (connection refused,
// file lock). Callers may retry.
var ErrBackendUnavailable = errors.New("backend unavailable")

// QueryError indicates the backend rejected the rendered expression.
// Not retryable; carries the rejected text for diagnostics.
type QueryError struct {
	Rendered string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query rejected: %v (text: %s)", e.Err, e.Rendered)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ExecutionResult reports the outcome of executing a rendered filter.
type ExecutionResult struct {
	// FeatureIDs is the set of matching feature identifiers.
	FeatureIDs map[uint64]struct{}

	// Count is the number of matching features.
	Count uint64

	// ElapsedMs is the wall-clock execution time in milliseconds.
	ElapsedMs uint64

	// Materialized, when non-empty, is an equivalent filter text that
	// references the acceleration object created by this execution (the
	// server backend's result-view membership form). Callers may record
	// it as the applied state so follow-up combines can reuse the object.
	Materialized string
}

// Strategy executes abstract filter requests as backend-native operations.
// Implementations are stateless with respect to filter history; per-call
// context arrives through the collection metadata.
type Strategy interface {
	// Kind returns the backend kind this strategy serves.
	Kind() catalog.BackendKind

	// Render converts the expression tree to this backend's dialect.
	// Deterministic. Returns expr.UnsupportedPredicateError when a
	// predicate has no native equivalent; callers may fall back to the
	// generic backend.
	Render(e expr.Expression, meta *catalog.Collection) (string, error)

	// Execute runs the rendered query and returns the matching feature
	// set. May create ephemeral acceleration objects named via
	// EphemeralName. Cancellation through ctx stops waiting and triggers
	// cleanup of partially created objects. Errors are either
	// ErrBackendUnavailable (retryable), a *QueryError (not retryable),
	// or the context error.
	Execute(ctx context.Context, rendered string, meta *catalog.Collection) (*ExecutionResult, error)

	// Cleanup releases ephemeral objects created by Execute for the
	// collection. Idempotent; safe when nothing was created.
	Cleanup(ctx context.Context, meta *catalog.Collection) error
}

// ForKind selects a strategy by backend kind from the given set.
func ForKind(strategies []Strategy, kind catalog.BackendKind) (Strategy, error) {
	for _, s := range strategies {
		if s.Kind() == kind {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no strategy registered for %s backend", kind)
}
