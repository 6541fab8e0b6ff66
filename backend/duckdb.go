package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	// Registers the "duckdb" database/sql driver.
	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/expr"
)

// SQLProvider supplies live embedded-database connections per collection.
// Callers close the connection on all exit paths.
type SQLProvider interface {
	Acquire(ctx context.Context, meta *catalog.Collection) (*sql.Conn, error)
}

// FileProvider opens one DuckDB database per collection, keyed by the
// collection's Path, and loads the spatial extension on first open.
type FileProvider struct {
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewFileProvider creates an empty file-database provider.
func NewFileProvider() *FileProvider {
	return &FileProvider{dbs: make(map[string]*sql.DB)}
}

// Acquire implements SQLProvider.
func (p *FileProvider) Acquire(ctx context.Context, meta *catalog.Collection) (*sql.Conn, error) {
	db, err := p.open(ctx, meta.Path)
	if err != nil {
		return nil, err
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, classifyDuck("", err)
	}
	return conn, nil
}

func (p *FileProvider) open(ctx context.Context, path string) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.dbs[path]; ok {
		return db, nil
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if _, err := db.ExecContext(ctx, "INSTALL spatial; LOAD spatial;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: load spatial extension: %v", ErrBackendUnavailable, err)
	}

	p.dbs[path] = db
	return db, nil
}

// Close closes every opened database.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for path, db := range p.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.dbs, path)
	}
	return firstErr
}

// DuckDB executes filters on an embedded file database with the spatial
// extension. Each execution materializes its result into a temporary table
// with an R-tree index, named from the rendered text hash for reuse.
//
// Temp tables are session-scoped, so each collection is pinned to one
// connection: executions share it, making the IF NOT EXISTS reuse real, and
// Cleanup drops the tables on the same session before releasing it.
type DuckDB struct {
	provider SQLProvider
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*duckSession // collection ID -> pinned connection
}

// duckSession is the pinned connection for one collection and the temp
// tables created on it.
type duckSession struct {
	conn   *sql.Conn
	tables []string
}

// NewDuckDB creates the embedded backend strategy.
// If logger is nil, slog.Default() is used.
func NewDuckDB(provider SQLProvider, logger *slog.Logger) *DuckDB {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDB{
		provider: provider,
		logger:   logger.With(slog.String("backend", "duckdb")),
		sessions: make(map[string]*duckSession),
	}
}

// Kind implements Strategy.
func (d *DuckDB) Kind() catalog.BackendKind { return catalog.KindDuckDB }

// Render implements Strategy.
func (d *DuckDB) Render(e expr.Expression, meta *catalog.Collection) (string, error) {
	return expr.Render(e, catalog.KindDuckDB, meta)
}

// Execute implements Strategy.
func (d *DuckDB) Execute(ctx context.Context, rendered string, meta *catalog.Collection) (*ExecutionResult, error) {
	start := time.Now()

	s, err := d.session(ctx, meta)
	if err != nil {
		return nil, err
	}

	tmp := EphemeralName(TempPrefix, rendered)
	create := fmt.Sprintf(
		"CREATE TEMP TABLE IF NOT EXISTS %s AS SELECT %s AS key, %s AS geom FROM %s WHERE %s",
		tmp,
		catalog.QuoteIdent(meta.IDColumn),
		catalog.QuoteIdent(meta.GeomColumn),
		meta.QualifiedTable(),
		rendered,
	)

	if _, err := s.conn.ExecContext(ctx, create); err != nil {
		return nil, d.fail(meta.ID, s, rendered, err)
	}
	d.track(s, tmp)

	index := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_idx ON %s USING RTREE (geom)", tmp, tmp)
	if _, err := s.conn.ExecContext(ctx, index); err != nil {
		// The spatial index is an acceleration only; a failure to build
		// it does not invalidate the materialized result.
		d.logger.Warn("rtree index creation failed",
			slog.String("table", tmp),
			slog.String("error", err.Error()),
		)
	}

	rows, err := s.conn.QueryContext(ctx, fmt.Sprintf("SELECT key FROM %s", tmp))
	if err != nil {
		return nil, d.fail(meta.ID, s, rendered, err)
	}
	defer rows.Close()

	ids := make(map[uint64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, d.fail(meta.ID, s, rendered, err)
		}
		ids[uint64(id)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, d.fail(meta.ID, s, rendered, err)
	}

	d.logger.Debug("filter executed",
		slog.String("collection", meta.ID),
		slog.String("table", tmp),
		slog.Int("matches", len(ids)),
	)

	return &ExecutionResult{
		FeatureIDs: ids,
		Count:      uint64(len(ids)),
		ElapsedMs:  uint64(time.Since(start).Milliseconds()),
	}, nil
}

// Cleanup implements Strategy. Drops the collection's temp tables on their
// own session and releases the pinned connection.
func (d *DuckDB) Cleanup(ctx context.Context, meta *catalog.Collection) error {
	d.mu.Lock()
	s, ok := d.sessions[meta.ID]
	delete(d.sessions, meta.ID)
	d.mu.Unlock()

	if !ok {
		return nil
	}
	defer s.conn.Close()

	for _, tmp := range s.tables {
		if _, err := s.conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+tmp); err != nil {
			return classifyDuck("", err)
		}
	}
	return nil
}

// session returns the collection's pinned connection, acquiring one on first
// use.
func (d *DuckDB) session(ctx context.Context, meta *catalog.Collection) (*duckSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.sessions[meta.ID]; ok {
		return s, nil
	}
	conn, err := d.provider.Acquire(ctx, meta)
	if err != nil {
		return nil, err
	}
	s := &duckSession{conn: conn}
	d.sessions[meta.ID] = s
	return s, nil
}

func (d *DuckDB) track(s *duckSession, tmp string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range s.tables {
		if t == tmp {
			return
		}
	}
	s.tables = append(s.tables, tmp)
}

// fail classifies an execution error. A transient failure means the pinned
// connection may be dead, so the session is discarded and the next execution
// acquires a fresh one.
func (d *DuckDB) fail(collectionID string, s *duckSession, rendered string, err error) error {
	cerr := classifyDuck(rendered, err)
	if errors.Is(cerr, ErrBackendUnavailable) {
		d.mu.Lock()
		if d.sessions[collectionID] == s {
			delete(d.sessions, collectionID)
		}
		d.mu.Unlock()
		s.conn.Close()
	}
	return cerr
}

// classifyDuck maps a DuckDB driver error to the strategy error taxonomy.
// The driver exposes no structured codes, so classification goes by the
// error classes DuckDB prints. File locks are the common transient case for
// embedded databases.
func classifyDuck(rendered string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "Parser Error"),
		strings.Contains(msg, "Binder Error"),
		strings.Contains(msg, "Catalog Error"),
		strings.Contains(msg, "Conversion Error"):
		return &QueryError{Rendered: rendered, Err: err}
	case strings.Contains(msg, "lock"),
		strings.Contains(msg, "IO Error"),
		errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &QueryError{Rendered: rendered, Err: err}
}
