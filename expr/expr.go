// Package expr defines the typed filter expression tree and its rendering to
// backend-native query text. Expressions are immutable once built; rendering
// is a pure function of (expression, backend kind, collection metadata).
package expr

import (
	"strings"

	"github.com/paulmach/orb"
)

// Operator combines two expressions.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// SpatialPredicate identifies a binary geometry predicate. The feature
// geometry is always the first operand, the reference geometry the second.
type SpatialPredicate int

const (
	Intersects SpatialPredicate = iota
	Contains
	Within
	Disjoint
	Crosses
	Touches
	Overlaps
	Equals
)

func (p SpatialPredicate) String() string {
	switch p {
	case Intersects:
		return "intersects"
	case Contains:
		return "contains"
	case Within:
		return "within"
	case Disjoint:
		return "disjoint"
	case Crosses:
		return "crosses"
	case Touches:
		return "touches"
	case Overlaps:
		return "overlaps"
	case Equals:
		return "equals"
	default:
		return "unknown"
	}
}

// Expression is the interface implemented by all filter expression nodes.
// Use type assertions or type switches to access specific node data.
type Expression interface {
	// exprNode is a marker method to prevent external implementation.
	exprNode()
}

// Attribute is a predicate over non-spatial columns, carried as dialect-ready
// predicate text (e.g. `"population" > 1000`).
type Attribute struct {
	Predicate string
}

// Spatial is a geometry predicate against a reference geometry, optionally
// buffered by a distance in the collection's CRS units.
type Spatial struct {
	Predicate SpatialPredicate
	Buffer    float64
	Reference orb.Geometry
}

// Combined joins two expressions with a logical operator.
type Combined struct {
	Left  Expression
	Right Expression
	Op    Operator
}

func (*Attribute) exprNode() {}
func (*Spatial) exprNode()   {}
func (*Combined) exprNode()  {}

// NewAttribute creates an attribute predicate node.
func NewAttribute(predicate string) *Attribute {
	return &Attribute{Predicate: strings.TrimSpace(predicate)}
}

// NewSpatial creates a spatial predicate node. A zero buffer means the
// reference geometry is used as-is.
func NewSpatial(p SpatialPredicate, buffer float64, reference orb.Geometry) *Spatial {
	return &Spatial{Predicate: p, Buffer: buffer, Reference: reference}
}

// And combines two expressions with AND.
func And(left, right Expression) *Combined {
	return &Combined{Left: left, Right: right, Op: OpAnd}
}

// Or combines two expressions with OR.
func Or(left, right Expression) *Combined {
	return &Combined{Left: left, Right: right, Op: OpOr}
}

// FindSpatial returns the first spatial node in the tree, depth-first, or nil
// if the expression contains none. The optimizer uses this for structural
// detection on the typed tree instead of scanning rendered text.
func FindSpatial(e Expression) *Spatial {
	switch n := e.(type) {
	case *Spatial:
		return n
	case *Combined:
		if s := FindSpatial(n.Left); s != nil {
			return s
		}
		return FindSpatial(n.Right)
	default:
		return nil
	}
}

// IsSpatialOnly reports whether the expression is a single spatial predicate.
func IsSpatialOnly(e Expression) bool {
	_, ok := e.(*Spatial)
	return ok
}
