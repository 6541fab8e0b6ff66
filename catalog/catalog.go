// Package catalog provides read-only collection metadata used by the filter
// engine: which backend stores a collection, its table and column names, and
// row-count estimates for optimizer diagnostics.
//
// The engine never mutates metadata; implementations of Provider own it.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// BackendKind identifies the query dialect and execution environment of a
// collection. It is a closed set: adding a backend means adding a constant
// here and a strategy implementing it, checked at compile time.
type BackendKind int

const (
	// KindMemory is the generic in-process feature store. It has no native
	// spatial index; queries materialize candidate features before filtering.
	KindMemory BackendKind = iota

	// KindPostgres is a server-side relational store with PostGIS functions
	// and reusable materialized result-views.
	KindPostgres

	// KindDuckDB is an embedded file database with the spatial extension and
	// scoped temporary tables.
	KindDuckDB
)

func (k BackendKind) String() string {
	switch k {
	case KindMemory:
		return "memory"
	case KindPostgres:
		return "postgres"
	case KindDuckDB:
		return "duckdb"
	default:
		return fmt.Sprintf("backend(%d)", int(k))
	}
}

// ErrUnknownCollection indicates a metadata lookup for an unregistered
// collection identifier.
var ErrUnknownCollection = errors.New("unknown collection")

// Collection describes one filterable feature collection.
type Collection struct {
	// ID is the stable collection identifier used as the history key.
	ID string

	// Schema is the database schema name. Ignored by embedded and memory
	// backends.
	Schema string

	// Table is the base table (or layer) name.
	Table string

	// IDColumn is the feature identifier column.
	IDColumn string

	// GeomColumn is the geometry column.
	GeomColumn string

	// SRID is the spatial reference identifier of GeomColumn.
	SRID int

	// Kind selects the backend strategy for this collection.
	Kind BackendKind

	// Path locates the database file for embedded backends. Empty for
	// server and memory backends.
	Path string

	// ApproxRows is an estimate of the base table size, used only for
	// optimizer speedup diagnostics. Zero means unknown.
	ApproxRows int64
}

// QualifiedTable returns the quoted table reference for SQL dialects.
func (c *Collection) QualifiedTable() string {
	if c.Schema != "" {
		return QuoteIdent(c.Schema) + "." + QuoteIdent(c.Table)
	}
	return QuoteIdent(c.Table)
}

// QuoteIdent returns a double-quoted SQL identifier with embedded quotes
// doubled. Both supported SQL dialects accept double-quoted identifiers.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Provider is a read-only lookup of collection metadata.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Collection returns metadata for the given identifier.
	// Returns ErrUnknownCollection if the identifier is not registered.
	Collection(ctx context.Context, id string) (*Collection, error)
}

// StaticProvider is an immutable-after-registration Provider backed by a map.
type StaticProvider struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewStaticProvider creates an empty static provider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{collections: make(map[string]*Collection)}
}

// Add registers a collection. Later registrations with the same ID replace
// earlier ones.
func (p *StaticProvider) Add(c *Collection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collections[c.ID] = c
}

// Collection implements Provider.
func (p *StaticProvider) Collection(ctx context.Context, id string) (*Collection, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.collections[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, id)
	}
	return c, nil
}
