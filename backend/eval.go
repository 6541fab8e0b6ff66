package backend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/internal/sqltoken"
)

// featurePredicate decides whether one feature matches the compiled filter.
type featurePredicate func(f *Feature) (bool, error)

// spatialEvaluators maps neutral-dialect function names to geometry
// predicate implementations. The feature geometry is the first operand.
var spatialEvaluators = map[string]func(a, b orb.Geometry) bool{
	"intersects": geomIntersects,
	"contains":   func(a, b orb.Geometry) bool { return geomWithin(b, a) },
	"within":     geomWithin,
	"disjoint":   func(a, b orb.Geometry) bool { return !geomIntersects(a, b) },
	"equals":     orb.Equal,
}

// compileFilter parses neutral-dialect filter text into a predicate.
// Grammar (tokens, case-insensitive keywords):
//
//	or     := and { OR and }
//	and    := unary { AND unary }
//	unary  := NOT unary | '(' or ')' | comparison | spatial
//	comparison := ident (= | != | <> | < | <= | > | >=) literal
//	            | ident IN '(' literal {',' literal} ')'
//	spatial    := name '(' $geometry ',' geom_from_wkt '(' string ')' ')'
func compileFilter(rendered string, meta *catalog.Collection) (featurePredicate, error) {
	p := &filterParser{
		toks: sqltoken.Scan(rendered),
		meta: meta,
	}
	pred, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("unexpected trailing token %q", p.toks[p.pos].Text)
	}
	return pred, nil
}

type filterParser struct {
	toks []sqltoken.Token
	pos  int
	meta *catalog.Collection
}

func (p *filterParser) peek() (sqltoken.Token, bool) {
	if p.pos >= len(p.toks) {
		return sqltoken.Token{}, false
	}
	return p.toks[p.pos], true
}

func (p *filterParser) next() (sqltoken.Token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

func (p *filterParser) expectSymbol(sym string) error {
	t, ok := p.next()
	if !ok || t.Kind != sqltoken.Symbol || t.Text != sym {
		return fmt.Errorf("expected %q", sym)
	}
	return nil
}

func (p *filterParser) parseOr() (featurePredicate, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || !t.EqualFold("OR") {
			return left, nil
		}
		p.pos++
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(f *Feature) (bool, error) {
			ok, err := l(f)
			if err != nil || ok {
				return ok, err
			}
			return r(f)
		}
	}
}

func (p *filterParser) parseAnd() (featurePredicate, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t, ok := p.peek()
		if !ok || !t.EqualFold("AND") {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l, r := left, right
		left = func(f *Feature) (bool, error) {
			ok, err := l(f)
			if err != nil || !ok {
				return ok, err
			}
			return r(f)
		}
	}
}

func (p *filterParser) parseUnary() (featurePredicate, error) {
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of filter")
	}

	if t.EqualFold("NOT") {
		p.pos++
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return func(f *Feature) (bool, error) {
			ok, err := inner(f)
			return !ok, err
		}, nil
	}

	if t.Kind == sqltoken.Symbol && t.Text == "(" {
		p.pos++
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(")"); err != nil {
			return nil, err
		}
		return inner, nil
	}

	if t.Kind != sqltoken.Ident {
		return nil, fmt.Errorf("unexpected token %q", t.Text)
	}

	if _, isSpatial := spatialEvaluators[strings.ToLower(t.Text)]; isSpatial && !t.Quoted {
		return p.parseSpatial()
	}
	return p.parseComparison()
}

func (p *filterParser) parseSpatial() (featurePredicate, error) {
	name, _ := p.next()
	eval := spatialEvaluators[strings.ToLower(name.Text)]

	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	arg, ok := p.next()
	if !ok || !arg.EqualFold("$geometry") {
		return nil, fmt.Errorf("%s: first argument must be $geometry", name.Text)
	}
	if err := p.expectSymbol(","); err != nil {
		return nil, err
	}

	fn, ok := p.next()
	if !ok || !fn.EqualFold("geom_from_wkt") {
		return nil, fmt.Errorf("%s: unsupported reference geometry expression", name.Text)
	}
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	lit, ok := p.next()
	if !ok || lit.Kind != sqltoken.String {
		return nil, fmt.Errorf("geom_from_wkt: expected WKT string literal")
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}

	ref, err := wkt.Unmarshal(lit.Text)
	if err != nil {
		return nil, fmt.Errorf("geom_from_wkt: %w", err)
	}

	return func(f *Feature) (bool, error) {
		if f.Geometry == nil {
			return false, nil
		}
		return eval(f.Geometry, ref), nil
	}, nil
}

func (p *filterParser) parseComparison() (featurePredicate, error) {
	col, _ := p.next()

	op, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("%s: expected operator", col.Text)
	}

	if op.EqualFold("IN") {
		return p.parseInList(col)
	}
	if op.Kind != sqltoken.Symbol {
		return nil, fmt.Errorf("%s: unexpected operator %q", col.Text, op.Text)
	}

	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	column, operator := col.Text, op.Text
	return func(f *Feature) (bool, error) {
		return compareValue(p.lookup(f, column), operator, lit)
	}, nil
}

func (p *filterParser) parseInList(col sqltoken.Token) (featurePredicate, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	var values []any
	for {
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, lit)

		t, ok := p.next()
		if !ok {
			return nil, fmt.Errorf("%s IN: unterminated list", col.Text)
		}
		if t.Kind == sqltoken.Symbol && t.Text == ")" {
			break
		}
		if t.Kind != sqltoken.Symbol || t.Text != "," {
			return nil, fmt.Errorf("%s IN: expected ',' or ')'", col.Text)
		}
	}

	column := col.Text
	return func(f *Feature) (bool, error) {
		v := p.lookup(f, column)
		for _, want := range values {
			ok, err := compareValue(v, "=", want)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}, nil
}

func (p *filterParser) parseLiteral() (any, error) {
	t, ok := p.next()
	if !ok {
		return nil, fmt.Errorf("expected literal")
	}
	switch t.Kind {
	case sqltoken.Number:
		v, err := strconv.ParseFloat(t.Text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", t.Text, err)
		}
		return v, nil
	case sqltoken.String:
		return t.Text, nil
	case sqltoken.Ident:
		if t.EqualFold("TRUE") {
			return true, nil
		}
		if t.EqualFold("FALSE") {
			return false, nil
		}
	case sqltoken.Symbol:
		if t.Text == "-" {
			num, ok := p.next()
			if ok && num.Kind == sqltoken.Number {
				v, err := strconv.ParseFloat(num.Text, 64)
				if err != nil {
					return nil, fmt.Errorf("bad number %q: %w", num.Text, err)
				}
				return -v, nil
			}
		}
	}
	return nil, fmt.Errorf("unexpected literal %q", t.Text)
}

// lookup resolves a column reference against a feature. The identifier
// column and the $id alias resolve to the feature ID.
func (p *filterParser) lookup(f *Feature, column string) any {
	if column == "$id" || strings.EqualFold(column, p.meta.IDColumn) {
		return float64(f.ID)
	}
	if f.Attrs == nil {
		return nil
	}
	return f.Attrs[column]
}

// compareValue applies a comparison operator between an attribute value and
// a literal. Numeric types compare as float64; strings and bools support
// equality only.
func compareValue(have any, op string, want any) (bool, error) {
	hn, hIsNum := toFloat(have)
	wn, wIsNum := toFloat(want)

	if hIsNum && wIsNum {
		switch op {
		case "=":
			return hn == wn, nil
		case "!=", "<>":
			return hn != wn, nil
		case "<":
			return hn < wn, nil
		case "<=":
			return hn <= wn, nil
		case ">":
			return hn > wn, nil
		case ">=":
			return hn >= wn, nil
		}
		return false, fmt.Errorf("unsupported operator %q", op)
	}

	switch op {
	case "=":
		return have == want, nil
	case "!=", "<>":
		return have != want, nil
	}
	if have == nil {
		return false, nil
	}
	return false, fmt.Errorf("operator %q requires numeric operands", op)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
