// Package optimizer rewrites successively combined filter expressions so a
// new filter step does not re-evaluate work the prior step already did.
// Given the prior step's rendered text and the new typed expression, it
// detects structural patterns (result-view references, literal identifier
// lists) and emits an equivalent, cheaper conjunction.
//
// The optimizer is stateless per collection; its only state is a bounded,
// shared rewrite cache keyed by content hash.
package optimizer

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/zeebo/xxh3"

	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/expr"
	"github.com/sducournau/filter-mate-sub019/internal/sqltoken"
)

// Default tuning values.
const (
	DefaultCacheSize    = 50
	DefaultRangeMinSize = 8
	DefaultSpeedupCap   = 100.0
)

// BackendMismatchError indicates old rendered text whose detected dialect
// conflicts with the requested backend kind. This is a programmer error;
// it is never retried and never silently corrected.
type BackendMismatchError struct {
	Detected  catalog.BackendKind
	Requested catalog.BackendKind
}

func (e *BackendMismatchError) Error() string {
	return fmt.Sprintf("backend mismatch: old expression is %s dialect, requested %s",
		e.Detected, e.Requested)
}

// Config tunes the optimizer. Zero values select the defaults above.
type Config struct {
	// CacheSize bounds the shared rewrite cache (LRU entries).
	CacheSize int

	// RangeMinSize is the minimum identifier-list length for range
	// conversion.
	RangeMinSize int

	// SpeedupCap bounds reported speedup estimates.
	SpeedupCap float64
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.CacheSize <= 0 {
		out.CacheSize = DefaultCacheSize
	}
	if out.RangeMinSize <= 0 {
		out.RangeMinSize = DefaultRangeMinSize
	}
	if out.SpeedupCap <= 0 {
		out.SpeedupCap = DefaultSpeedupCap
	}
	return out
}

// Optimizer combines filter expressions with backend-aware rewrites.
// Safe for concurrent use across collections.
type Optimizer struct {
	cfg    Config
	cache  *lru.Cache[uint64, Result]
	logger *slog.Logger
}

// New creates an Optimizer. If logger is nil, slog.Default() is used.
func New(cfg Config, logger *slog.Logger) (*Optimizer, error) {
	cfg = cfg.withDefaults()
	cache, err := lru.New[uint64, Result](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("rewrite cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Optimizer{
		cfg:    cfg,
		cache:  cache,
		logger: logger.With(slog.String("component", "optimizer")),
	}, nil
}

// Combine rewrites (old <op> new) for the given backend. Rules are tried in
// priority order and are mutually exclusive per invocation: cache hit, view
// reuse (server), identifier-list reordering (embedded/generic), range
// conversion, naive conjunction.
//
// priorRows is the result count of the prior filter step (0 = unknown); it
// feeds speedup diagnostics only.
//
// Empty old text means "no prior filter": the new expression is rendered
// unchanged and tagged OptNone.
func (o *Optimizer) Combine(old string, e expr.Expression, op expr.Operator, meta *catalog.Collection, kind catalog.BackendKind, priorRows uint64) (Result, error) {
	rendered, err := expr.Render(e, kind, meta)
	if err != nil {
		return Result{}, err
	}

	old = strings.TrimSpace(old)
	if old == "" {
		return Result{
			Success:          true,
			Rewritten:        rendered,
			Type:             OptNone,
			EstimatedSpeedup: 1,
		}, nil
	}

	toks := sqltoken.Scan(old)
	if detected, known := detectDialect(toks); known && detected != kind {
		return Result{}, &BackendMismatchError{Detected: detected, Requested: kind}
	}

	key := cacheKey(old, rendered, op, kind)
	if cached, ok := o.cache.Get(key); ok {
		cached.Type = OptCacheHit
		return cached, nil
	}

	res := o.rewrite(old, toks, e, rendered, op, meta, kind, priorRows)
	o.cache.Add(key, res)

	if res.Type != OptNone {
		o.logger.Debug("combined expression rewritten",
			slog.String("collection", meta.ID),
			slog.String("optimization", string(res.Type)),
			slog.Float64("estimated_speedup", res.EstimatedSpeedup),
		)
	}
	return res, nil
}

func (o *Optimizer) rewrite(old string, toks []sqltoken.Token, e expr.Expression, rendered string, op expr.Operator, meta *catalog.Collection, kind catalog.BackendKind, priorRows uint64) Result {
	if kind == catalog.KindPostgres && op == expr.OpAnd {
		if res, ok := o.viewReuse(toks, e, meta, priorRows); ok {
			return res
		}
	}

	if kind == catalog.KindDuckDB || kind == catalog.KindMemory {
		if list, ok := matchIDList(toks); ok {
			if op == expr.OpAnd && expr.FindSpatial(e) != nil {
				return o.idListReorder(list, rendered, meta)
			}
			if res, ok := o.rangeConvert(list, rendered, op); ok {
				return res
			}
		}
	}

	return Result{
		Success:          true,
		Rewritten:        "(" + old + ") " + string(op) + " (" + rendered + ")",
		Type:             OptNone,
		EstimatedSpeedup: 1,
	}
}

// viewReuse re-targets a spatial check at a prior result-view. The view
// already holds the reduced row set of the prior step, so the spatial
// predicate runs against it instead of the full base table.
func (o *Optimizer) viewReuse(toks []sqltoken.Token, e expr.Expression, meta *catalog.Collection, priorRows uint64) (Result, bool) {
	ref, ok := matchView(toks)
	if !ok {
		return Result{}, false
	}
	if !expr.IsSpatialOnly(e) {
		return Result{}, false
	}
	s := e.(*expr.Spatial)

	// The view materializes (key, geom); the check runs on its rows.
	cond, err := expr.Predicate(s, catalog.KindPostgres, "geom", meta)
	if err != nil {
		return Result{}, false
	}

	rewritten := fmt.Sprintf("%s IN (SELECT %s FROM %s WHERE %s)",
		spell(ref.IDColumn), spell(ref.KeyColumn), ref.View, cond)

	speedup := 1.0
	if meta.ApproxRows > 0 && priorRows > 0 {
		speedup = float64(meta.ApproxRows) / float64(priorRows)
		if speedup < 1 {
			speedup = 1
		}
		if speedup > o.cfg.SpeedupCap {
			speedup = o.cfg.SpeedupCap
		}
	}

	return Result{
		Success:          true,
		Rewritten:        rewritten,
		Type:             OptViewReuse,
		EstimatedSpeedup: speedup,
		Facts: &ViewFacts{
			View:     ref.View,
			BaseRows: meta.ApproxRows,
			ViewRows: priorRows,
		},
	}, true
}

// idListReorder places the cheap identifier-list test before the costlier
// spatial clause so evaluation short-circuits on non-members.
func (o *Optimizer) idListReorder(list *idList, rendered string, meta *catalog.Collection) Result {
	min, max, contiguous := list.bounds()

	values := make([]string, len(list.Values))
	for i, v := range list.Values {
		values[i] = strconv.FormatUint(v, 10)
	}
	clause := spell(list.Column) + " IN (" + strings.Join(values, ", ") + ")"

	speedup := 2.0
	if meta.ApproxRows > 0 && len(list.Values) > 0 {
		speedup = float64(meta.ApproxRows) / float64(len(list.Values))
		if speedup < 1 {
			speedup = 1
		}
		if speedup > o.cfg.SpeedupCap {
			speedup = o.cfg.SpeedupCap
		}
	}

	return Result{
		Success:          true,
		Rewritten:        "(" + clause + ") AND (" + rendered + ")",
		Type:             OptIDList,
		EstimatedSpeedup: speedup,
		Facts: &IDListFacts{
			Column:     list.Column.Text,
			Min:        min,
			Max:        max,
			Count:      len(list.Values),
			Contiguous: contiguous,
		},
	}
}

// rangeConvert replaces a gap-free identifier list with a range comparison.
// Fires only when the values provably fill [min, max] exactly and the list
// meets the minimum size.
func (o *Optimizer) rangeConvert(list *idList, rendered string, op expr.Operator) (Result, bool) {
	min, max, contiguous := list.bounds()
	if !contiguous || len(list.Values) < o.cfg.RangeMinSize {
		return Result{}, false
	}

	col := spell(list.Column)
	clause := fmt.Sprintf("%s >= %d AND %s <= %d", col, min, col, max)

	return Result{
		Success:          true,
		Rewritten:        "(" + clause + ") " + string(op) + " (" + rendered + ")",
		Type:             OptRange,
		EstimatedSpeedup: 1.5,
		Facts: &IDListFacts{
			Column:     list.Column.Text,
			Min:        min,
			Max:        max,
			Count:      len(list.Values),
			Contiguous: true,
		},
	}, true
}

// cacheKey hashes the combine inputs. priorRows is excluded: it only
// affects diagnostic fields.
func cacheKey(old, rendered string, op expr.Operator, kind catalog.BackendKind) uint64 {
	var b strings.Builder
	b.Grow(len(old) + len(rendered) + 16)
	b.WriteString(old)
	b.WriteByte(0x1f)
	b.WriteString(rendered)
	b.WriteByte(0x1f)
	b.WriteString(string(op))
	b.WriteByte(0x1f)
	b.WriteString(kind.String())
	return xxh3.HashString(b.String())
}
