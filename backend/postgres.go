package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/expr"
)

// PGConn is the scoped server connection handle used by the Postgres
// strategy. *pgxpool.Conn satisfies it directly.
type PGConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Release()
}

// PGProvider supplies live server connections per collection. Connections
// are released on all exit paths, including error and cancellation.
type PGProvider interface {
	Acquire(ctx context.Context, meta *catalog.Collection) (PGConn, error)
}

// PoolProvider is a PGProvider backed by a single pgx pool.
type PoolProvider struct {
	Pool *pgxpool.Pool
}

// Acquire implements PGProvider.
func (p *PoolProvider) Acquire(ctx context.Context, meta *catalog.Collection) (PGConn, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return conn, nil
}

// Postgres executes filters on a server-side relational store with PostGIS.
// Each execution materializes its result into a view named from the rendered
// text hash, so that repeated identical requests reuse the prior view and the
// optimizer can re-target follow-up spatial checks at it.
type Postgres struct {
	provider PGProvider
	logger   *slog.Logger

	mu      sync.Mutex
	created map[string][]string // collection ID -> view names
}

// NewPostgres creates the server backend strategy.
// If logger is nil, slog.Default() is used.
func NewPostgres(provider PGProvider, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{
		provider: provider,
		logger:   logger.With(slog.String("backend", "postgres")),
		created:  make(map[string][]string),
	}
}

// Kind implements Strategy.
func (p *Postgres) Kind() catalog.BackendKind { return catalog.KindPostgres }

// Render implements Strategy.
func (p *Postgres) Render(e expr.Expression, meta *catalog.Collection) (string, error) {
	return expr.Render(e, catalog.KindPostgres, meta)
}

// Execute implements Strategy. It materializes the filtered rows into a
// result-view holding (key, geom) and reads the keys back.
func (p *Postgres) Execute(ctx context.Context, rendered string, meta *catalog.Collection) (*ExecutionResult, error) {
	start := time.Now()

	conn, err := p.provider.Acquire(ctx, meta)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	view := EphemeralName(ViewPrefix, rendered)
	create := fmt.Sprintf(
		"CREATE MATERIALIZED VIEW IF NOT EXISTS %s AS SELECT %s AS key, %s AS geom FROM %s WHERE %s",
		view,
		catalog.QuoteIdent(meta.IDColumn),
		catalog.QuoteIdent(meta.GeomColumn),
		meta.QualifiedTable(),
		rendered,
	)

	if _, err := conn.Exec(ctx, create); err != nil {
		p.dropPartial(conn, view, err)
		return nil, classifyPG(rendered, err)
	}
	p.track(meta.ID, view)

	rows, err := conn.Query(ctx, fmt.Sprintf("SELECT key FROM %s", view))
	if err != nil {
		return nil, classifyPG(rendered, err)
	}
	defer rows.Close()

	ids := make(map[uint64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classifyPG(rendered, err)
		}
		ids[uint64(id)] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPG(rendered, err)
	}

	p.logger.Debug("filter executed",
		slog.String("collection", meta.ID),
		slog.String("view", view),
		slog.Int("matches", len(ids)),
	)

	return &ExecutionResult{
		FeatureIDs:   ids,
		Count:        uint64(len(ids)),
		ElapsedMs:    uint64(time.Since(start).Milliseconds()),
		Materialized: fmt.Sprintf("%s IN (SELECT key FROM %s)", catalog.QuoteIdent(meta.IDColumn), view),
	}, nil
}

// Cleanup implements Strategy. Drops every view created for the collection.
func (p *Postgres) Cleanup(ctx context.Context, meta *catalog.Collection) error {
	p.mu.Lock()
	views := p.created[meta.ID]
	delete(p.created, meta.ID)
	p.mu.Unlock()

	if len(views) == 0 {
		return nil
	}

	conn, err := p.provider.Acquire(ctx, meta)
	if err != nil {
		return err
	}
	defer conn.Release()

	for _, view := range views {
		if _, err := conn.Exec(ctx, "DROP MATERIALIZED VIEW IF EXISTS "+view); err != nil {
			return classifyPG("", err)
		}
	}
	return nil
}

func (p *Postgres) track(collectionID, view string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, v := range p.created[collectionID] {
		if v == view {
			return
		}
	}
	p.created[collectionID] = append(p.created[collectionID], view)
}

// dropPartial removes a view left half-built by a cancelled or failed
// creation. Uses a fresh context: the request context is already dead.
func (p *Postgres) dropPartial(conn PGConn, view string, cause error) {
	if !errors.Is(cause, context.Canceled) && !errors.Is(cause, context.DeadlineExceeded) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, "DROP MATERIALIZED VIEW IF EXISTS "+view); err != nil {
		p.logger.Warn("failed to drop partial view",
			slog.String("view", view),
			slog.String("error", err.Error()),
		)
	}
}

// classifyPG maps a pgx error to the strategy error taxonomy. SQLSTATE
// classes 42 (syntax/name) and 22 (data) mean the expression is bad; classes
// 08, 53 and 57 are transient server conditions.
func classifyPG(rendered string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := ""
		if len(pgErr.Code) >= 2 {
			class = pgErr.Code[:2]
		}
		switch class {
		case "42", "22":
			return &QueryError{Rendered: rendered, Err: err}
		case "08", "53", "57":
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return &QueryError{Rendered: rendered, Err: err}
	}

	if pgconn.SafeToRetry(err) || strings.Contains(err.Error(), "connection") {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &QueryError{Rendered: rendered, Err: err}
}
