package expr

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/sducournau/filter-mate-sub019/catalog"
)

func testMeta(kind catalog.BackendKind) *catalog.Collection {
	return &catalog.Collection{
		ID:         "parcels",
		Schema:     "public",
		Table:      "parcels",
		IDColumn:   "fid",
		GeomColumn: "geom",
		SRID:       4326,
		Kind:       kind,
	}
}

// TestRenderAttribute tests that attribute predicates pass through unchanged
// on every backend.
func TestRenderAttribute(t *testing.T) {
	e := NewAttribute("  zone = 'A'  ")
	for _, kind := range []catalog.BackendKind{catalog.KindPostgres, catalog.KindDuckDB, catalog.KindMemory} {
		got, err := Render(e, kind, testMeta(kind))
		if err != nil {
			t.Fatalf("Render on %s: %v", kind, err)
		}
		if got != "zone = 'A'" {
			t.Errorf("Render on %s = %q, want %q", kind, got, "zone = 'A'")
		}
	}
}

// TestRenderSpatialPostgres tests the server dialect's correlated existence
// form with SRID-tagged geometry literal.
func TestRenderSpatialPostgres(t *testing.T) {
	e := NewSpatial(Intersects, 0, orb.Point{1, 2})
	got, err := Render(e, catalog.KindPostgres, testMeta(catalog.KindPostgres))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := `EXISTS (SELECT 1 FROM "public"."parcels" AS s WHERE s."fid" = "parcels"."fid" AND ST_Intersects(s."geom", ST_GeomFromText('POINT(1 2)', 4326)))`
	if got != want {
		t.Errorf("Render = %s\nwant %s", got, want)
	}
}

// TestRenderSpatialDuckDB tests the embedded dialect's bare predicate with
// SRID-less geometry literal.
func TestRenderSpatialDuckDB(t *testing.T) {
	e := NewSpatial(Within, 0, orb.Point{1, 2})
	got, err := Render(e, catalog.KindDuckDB, testMeta(catalog.KindDuckDB))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := `ST_Within("geom", ST_GeomFromText('POINT(1 2)'))`
	if got != want {
		t.Errorf("Render = %s, want %s", got, want)
	}
}

// TestRenderSpatialMemory tests the neutral dialect.
func TestRenderSpatialMemory(t *testing.T) {
	e := NewSpatial(Intersects, 0, orb.Point{1, 2})
	got, err := Render(e, catalog.KindMemory, testMeta(catalog.KindMemory))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := `intersects($geometry, geom_from_wkt('POINT(1 2)'))`
	if got != want {
		t.Errorf("Render = %s, want %s", got, want)
	}
}

// TestRenderBuffer tests buffered reference geometries on SQL dialects and
// their rejection on the generic backend.
func TestRenderBuffer(t *testing.T) {
	e := NewSpatial(Within, 25.5, orb.Point{1, 2})

	got, err := Render(e, catalog.KindDuckDB, testMeta(catalog.KindDuckDB))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := `ST_Within("geom", ST_Buffer(ST_GeomFromText('POINT(1 2)'), 25.5))`
	if got != want {
		t.Errorf("Render = %s, want %s", got, want)
	}

	_, err = Render(e, catalog.KindMemory, testMeta(catalog.KindMemory))
	var unsupported *UnsupportedPredicateError
	if !errors.As(err, &unsupported) {
		t.Fatalf("Expected UnsupportedPredicateError on memory backend, got %v", err)
	}
}

// TestRenderMemoryUnsupportedPredicates tests that the relate family has no
// generic-backend equivalent.
func TestRenderMemoryUnsupportedPredicates(t *testing.T) {
	for _, p := range []SpatialPredicate{Crosses, Touches, Overlaps} {
		e := NewSpatial(p, 0, orb.Point{1, 2})
		_, err := Render(e, catalog.KindMemory, testMeta(catalog.KindMemory))
		var unsupported *UnsupportedPredicateError
		if !errors.As(err, &unsupported) {
			t.Errorf("Expected UnsupportedPredicateError for %s, got %v", p, err)
		}
	}
}

// TestRenderCombined tests the parenthesized conjunction form and error
// propagation from subtrees.
func TestRenderCombined(t *testing.T) {
	e := And(NewAttribute("zone = 'A'"), NewAttribute("pop > 100"))
	got, err := Render(e, catalog.KindMemory, testMeta(catalog.KindMemory))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "(zone = 'A') AND (pop > 100)" {
		t.Errorf("Render = %q", got)
	}

	bad := Or(NewAttribute("zone = 'A'"), NewSpatial(Crosses, 0, orb.Point{0, 0}))
	if _, err := Render(bad, catalog.KindMemory, testMeta(catalog.KindMemory)); err == nil {
		t.Error("Expected error from unsupported subtree")
	}
}

// TestFunctionName tests the per-dialect measure and accessor name tables.
func TestFunctionName(t *testing.T) {
	tests := []struct {
		kind catalog.BackendKind
		fn   Function
		want string
	}{
		{catalog.KindPostgres, FuncArea, "ST_Area"},
		{catalog.KindPostgres, FuncX, "ST_X"},
		{catalog.KindDuckDB, FuncPerimeter, "ST_Perimeter"},
		{catalog.KindMemory, FuncArea, "area"},
		{catalog.KindMemory, FuncY, "$y"},
	}
	for _, tt := range tests {
		if got := FunctionName(tt.kind, tt.fn); got != tt.want {
			t.Errorf("FunctionName(%s, %d) = %q, want %q", tt.kind, tt.fn, got, tt.want)
		}
	}
}

// TestFindSpatial tests depth-first spatial node discovery.
func TestFindSpatial(t *testing.T) {
	s := NewSpatial(Intersects, 0, orb.Point{1, 2})
	e := And(NewAttribute("a = 1"), Or(s, NewAttribute("b = 2")))
	if got := FindSpatial(e); got != s {
		t.Errorf("FindSpatial = %v, want the nested spatial node", got)
	}
	if got := FindSpatial(NewAttribute("a = 1")); got != nil {
		t.Errorf("FindSpatial on attribute = %v, want nil", got)
	}
}

// TestIsSpatialOnly tests the single-predicate check.
func TestIsSpatialOnly(t *testing.T) {
	if !IsSpatialOnly(NewSpatial(Within, 0, orb.Point{0, 0})) {
		t.Error("Expected bare spatial node to be spatial-only")
	}
	if IsSpatialOnly(And(NewSpatial(Within, 0, orb.Point{0, 0}), NewAttribute("a = 1"))) {
		t.Error("Expected combined node not to be spatial-only")
	}
}
