package expr

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb/encoding/wkt"

	"github.com/sducournau/filter-mate-sub019/catalog"
)

// UnsupportedPredicateError indicates a predicate/backend pairing with no
// native equivalent in that dialect. Callers may fall back to the generic
// backend.
type UnsupportedPredicateError struct {
	Predicate SpatialPredicate
	Kind      catalog.BackendKind
	Reason    string
}

func (e *UnsupportedPredicateError) Error() string {
	return fmt.Sprintf("predicate %s not supported on %s backend: %s",
		e.Predicate, e.Kind, e.Reason)
}

// Function identifies a dialect-dependent measure or coordinate accessor.
type Function int

const (
	FuncArea Function = iota
	FuncLength
	FuncPerimeter
	FuncX
	FuncY
)

// dialect holds the name tables and literal syntax for one backend kind.
type dialect struct {
	predicates map[SpatialPredicate]string
	functions  map[Function]string
	bufferFunc string

	// geomArg is the feature-geometry operand used when rendering a bare
	// predicate against the collection's own geometry column.
	geomArg func(meta *catalog.Collection) string

	geomLiteral func(wktText string, srid int) string
}

var postgresDialect = &dialect{
	predicates: map[SpatialPredicate]string{
		Intersects: "ST_Intersects",
		Contains:   "ST_Contains",
		Within:     "ST_Within",
		Disjoint:   "ST_Disjoint",
		Crosses:    "ST_Crosses",
		Touches:    "ST_Touches",
		Overlaps:   "ST_Overlaps",
		Equals:     "ST_Equals",
	},
	functions: map[Function]string{
		FuncArea:      "ST_Area",
		FuncLength:    "ST_Length",
		FuncPerimeter: "ST_Perimeter",
		FuncX:         "ST_X",
		FuncY:         "ST_Y",
	},
	bufferFunc: "ST_Buffer",
	geomArg: func(meta *catalog.Collection) string {
		return catalog.QuoteIdent(meta.GeomColumn)
	},
	geomLiteral: func(wktText string, srid int) string {
		return fmt.Sprintf("ST_GeomFromText('%s', %d)", wktText, srid)
	},
}

var duckdbDialect = &dialect{
	predicates: map[SpatialPredicate]string{
		Intersects: "ST_Intersects",
		Contains:   "ST_Contains",
		Within:     "ST_Within",
		Disjoint:   "ST_Disjoint",
		Crosses:    "ST_Crosses",
		Touches:    "ST_Touches",
		Overlaps:   "ST_Overlaps",
		Equals:     "ST_Equals",
	},
	functions: map[Function]string{
		FuncArea:      "ST_Area",
		FuncLength:    "ST_Length",
		FuncPerimeter: "ST_Perimeter",
		FuncX:         "ST_X",
		FuncY:         "ST_Y",
	},
	bufferFunc: "ST_Buffer",
	geomArg: func(meta *catalog.Collection) string {
		return catalog.QuoteIdent(meta.GeomColumn)
	},
	// DuckDB spatial geometries are SRID-less; the SRID is tracked in
	// collection metadata only.
	geomLiteral: func(wktText string, srid int) string {
		return fmt.Sprintf("ST_GeomFromText('%s')", wktText)
	},
}

// memoryDialect is the neutral expression dialect of the generic feature
// store. Only the predicates the in-process evaluator implements are listed;
// the relate family (crosses, touches, overlaps) has no equivalent there.
var memoryDialect = &dialect{
	predicates: map[SpatialPredicate]string{
		Intersects: "intersects",
		Contains:   "contains",
		Within:     "within",
		Disjoint:   "disjoint",
		Equals:     "equals",
	},
	functions: map[Function]string{
		FuncArea:      "area",
		FuncLength:    "length",
		FuncPerimeter: "perimeter",
		FuncX:         "$x",
		FuncY:         "$y",
	},
	geomArg: func(meta *catalog.Collection) string {
		return "$geometry"
	},
	geomLiteral: func(wktText string, srid int) string {
		return fmt.Sprintf("geom_from_wkt('%s')", wktText)
	},
}

func dialectFor(kind catalog.BackendKind) *dialect {
	switch kind {
	case catalog.KindPostgres:
		return postgresDialect
	case catalog.KindDuckDB:
		return duckdbDialect
	default:
		return memoryDialect
	}
}

// FunctionName returns the dialect-native name of a measure or coordinate
// accessor function.
func FunctionName(kind catalog.BackendKind, fn Function) string {
	return dialectFor(kind).functions[fn]
}

// Render converts an expression tree to backend-native query text.
// Returns an UnsupportedPredicateError when a spatial predicate has no
// equivalent in the requested dialect.
func Render(e Expression, kind catalog.BackendKind, meta *catalog.Collection) (string, error) {
	switch n := e.(type) {
	case *Attribute:
		return n.Predicate, nil
	case *Spatial:
		return renderSpatial(n, kind, meta)
	case *Combined:
		left, err := Render(n.Left, kind, meta)
		if err != nil {
			return "", err
		}
		right, err := Render(n.Right, kind, meta)
		if err != nil {
			return "", err
		}
		return "(" + left + ") " + string(n.Op) + " (" + right + ")", nil
	default:
		return "", fmt.Errorf("unknown expression node %T", e)
	}
}

// Predicate renders the bare predicate call for a spatial node with the given
// feature-geometry operand (e.g. `s."geom"` or the view's geometry column).
// The optimizer uses this to re-target a spatial check at a result-view.
func Predicate(s *Spatial, kind catalog.BackendKind, geomArg string, meta *catalog.Collection) (string, error) {
	d := dialectFor(kind)

	name, ok := d.predicates[s.Predicate]
	if !ok {
		return "", &UnsupportedPredicateError{
			Predicate: s.Predicate,
			Kind:      kind,
			Reason:    "no native predicate function",
		}
	}

	ref := d.geomLiteral(wkt.MarshalString(s.Reference), meta.SRID)
	if s.Buffer != 0 {
		if d.bufferFunc == "" {
			return "", &UnsupportedPredicateError{
				Predicate: s.Predicate,
				Kind:      kind,
				Reason:    "buffered reference geometries are not supported",
			}
		}
		ref = fmt.Sprintf("%s(%s, %s)", d.bufferFunc, ref,
			strconv.FormatFloat(s.Buffer, 'g', -1, 64))
	}

	return fmt.Sprintf("%s(%s, %s)", name, geomArg, ref), nil
}

// renderSpatial renders a spatial node for the collection's own rows.
//
// The server dialect renders a correlated existence check over the base
// table. This shape is deliberate: the optimizer recognizes it and re-targets
// the inner query at a prior result-view instead of the full table.
func renderSpatial(s *Spatial, kind catalog.BackendKind, meta *catalog.Collection) (string, error) {
	d := dialectFor(kind)

	if kind == catalog.KindPostgres {
		cond, err := Predicate(s, kind, "s."+catalog.QuoteIdent(meta.GeomColumn), meta)
		if err != nil {
			return "", err
		}
		id := catalog.QuoteIdent(meta.IDColumn)
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS s WHERE s.%s = %s.%s AND %s)",
			meta.QualifiedTable(), id, catalog.QuoteIdent(meta.Table), id, cond), nil
	}

	return Predicate(s, kind, d.geomArg(meta), meta)
}
