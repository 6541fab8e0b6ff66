package optimizer

import (
	"strconv"
	"strings"

	"github.com/sducournau/filter-mate-sub019/backend"
	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/internal/sqltoken"
)

// Structural pattern matchers over tokenized filter text. Matching is
// token-based, so whitespace and identifier quoting never cause false
// negatives, and list values inside string literals cannot be mistaken for
// identifier lists.

// viewRef is a detected result-view membership test:
// <id-column> IN (SELECT <key-column> FROM <view>).
type viewRef struct {
	IDColumn  sqltoken.Token
	KeyColumn sqltoken.Token
	View      string
}

// idList is a detected literal identifier-list membership test:
// <column> IN (v1, v2, ...).
type idList struct {
	Column sqltoken.Token
	Values []uint64
}

// stripParens removes balanced outer parentheses wrapping the whole token
// run.
func stripParens(toks []sqltoken.Token) []sqltoken.Token {
	for len(toks) >= 2 &&
		toks[0].Kind == sqltoken.Symbol && toks[0].Text == "(" &&
		toks[len(toks)-1].Kind == sqltoken.Symbol && toks[len(toks)-1].Text == ")" {
		depth := 0
		balanced := true
		for i, t := range toks[:len(toks)-1] {
			if t.Kind != sqltoken.Symbol {
				continue
			}
			switch t.Text {
			case "(":
				depth++
			case ")":
				depth--
			}
			if depth == 0 && i < len(toks)-2 {
				balanced = false
				break
			}
		}
		if !balanced {
			return toks
		}
		toks = toks[1 : len(toks)-1]
	}
	return toks
}

// matchView matches <id> IN ( SELECT <key> FROM <view> ) exactly. Only
// view-like names (the ephemeral view prefix) count.
func matchView(toks []sqltoken.Token) (*viewRef, bool) {
	toks = stripParens(toks)
	if len(toks) != 8 {
		return nil, false
	}
	if toks[0].Kind != sqltoken.Ident ||
		!toks[1].EqualFold("IN") ||
		!isSymbol(toks[2], "(") ||
		!toks[3].EqualFold("SELECT") ||
		toks[4].Kind != sqltoken.Ident ||
		!toks[5].EqualFold("FROM") ||
		toks[6].Kind != sqltoken.Ident ||
		!isSymbol(toks[7], ")") {
		return nil, false
	}
	view := toks[6].Text
	if !strings.HasPrefix(strings.ToLower(view), backend.ViewPrefix) {
		return nil, false
	}
	return &viewRef{IDColumn: toks[0], KeyColumn: toks[4], View: view}, true
}

// matchIDList matches <column> IN ( n1, n2, ... ) with numeric literals.
func matchIDList(toks []sqltoken.Token) (*idList, bool) {
	toks = stripParens(toks)
	if len(toks) < 4 {
		return nil, false
	}
	if toks[0].Kind != sqltoken.Ident ||
		!toks[1].EqualFold("IN") ||
		!isSymbol(toks[2], "(") ||
		!isSymbol(toks[len(toks)-1], ")") {
		return nil, false
	}

	list := &idList{Column: toks[0]}
	expectValue := true
	for _, t := range toks[3 : len(toks)-1] {
		if expectValue {
			if t.Kind != sqltoken.Number {
				return nil, false
			}
			v, err := strconv.ParseUint(t.Text, 10, 64)
			if err != nil {
				return nil, false
			}
			list.Values = append(list.Values, v)
		} else if !isSymbol(t, ",") {
			return nil, false
		}
		expectValue = !expectValue
	}
	if expectValue || len(list.Values) == 0 {
		return nil, false
	}
	return list, true
}

// bounds returns min, max and whether the values exactly fill [min, max]
// with no gaps and no duplicates.
func (l *idList) bounds() (uint64, uint64, bool) {
	min, max := l.Values[0], l.Values[0]
	seen := make(map[uint64]struct{}, len(l.Values))
	for _, v := range l.Values {
		if _, dup := seen[v]; dup {
			return min, max, false
		}
		seen[v] = struct{}{}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	contiguous := max-min+1 == uint64(len(l.Values))
	return min, max, contiguous
}

// detectDialect infers the backend dialect of rendered text from strong
// markers: ephemeral object prefixes, the neutral dialect's geometry
// variable, the server renderer's correlated EXISTS form, and ST_-prefixed
// spatial functions (SQL only, the bare form being the embedded renderer's
// shape). Returns false when no marker is present; absence of a marker is
// never treated as a mismatch.
func detectDialect(toks []sqltoken.Token) (catalog.BackendKind, bool) {
	hasExists := false
	hasSpatialFn := false
	for _, t := range toks {
		if t.Kind != sqltoken.Ident {
			continue
		}
		lower := strings.ToLower(t.Text)
		switch {
		case strings.HasPrefix(lower, backend.ViewPrefix):
			return catalog.KindPostgres, true
		case strings.HasPrefix(lower, backend.TempPrefix):
			return catalog.KindDuckDB, true
		case lower == "$geometry" || lower == "geom_from_wkt":
			return catalog.KindMemory, true
		case !t.Quoted && lower == "exists":
			hasExists = true
		case !t.Quoted && strings.HasPrefix(lower, "st_"):
			hasSpatialFn = true
		}
	}
	switch {
	case hasExists:
		return catalog.KindPostgres, true
	case hasSpatialFn:
		return catalog.KindDuckDB, true
	}
	return catalog.KindMemory, false
}

// spell reproduces an identifier token as written, restoring quotes.
func spell(t sqltoken.Token) string {
	if t.Quoted {
		return catalog.QuoteIdent(t.Text)
	}
	return t.Text
}

func isSymbol(t sqltoken.Token, s string) bool {
	return t.Kind == sqltoken.Symbol && t.Text == s
}
