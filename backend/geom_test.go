package backend

import (
	"testing"

	"github.com/paulmach/orb"
)

var unitSquare = orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}

// TestGeomIntersects tests the shared-point predicate across geometry
// pairings.
func TestGeomIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b orb.Geometry
		want bool
	}{
		{"point in polygon", orb.Point{2, 2}, unitSquare, true},
		{"point on boundary", orb.Point{0, 2}, unitSquare, true},
		{"point outside", orb.Point{9, 9}, unitSquare, false},
		{"equal points", orb.Point{1, 1}, orb.Point{1, 1}, true},
		{"distinct points", orb.Point{1, 1}, orb.Point{1, 2}, false},
		{"line crossing polygon", orb.LineString{{-1, 2}, {5, 2}}, unitSquare, true},
		{"line inside polygon", orb.LineString{{1, 1}, {3, 3}}, unitSquare, true},
		{"line outside polygon", orb.LineString{{5, 5}, {6, 6}}, unitSquare, false},
		{"overlapping polygons", orb.Polygon{{{3, 3}, {6, 3}, {6, 6}, {3, 6}, {3, 3}}}, unitSquare, true},
		{"nested polygons", orb.Polygon{{{1, 1}, {2, 1}, {2, 2}, {1, 2}, {1, 1}}}, unitSquare, true},
		{"disjoint polygons", orb.Polygon{{{7, 7}, {8, 7}, {8, 8}, {7, 8}, {7, 7}}}, unitSquare, false},
		{"nil geometry", nil, unitSquare, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := geomIntersects(tt.a, tt.b); got != tt.want {
				t.Errorf("geomIntersects = %v, want %v", got, tt.want)
			}
			if tt.a != nil && tt.b != nil {
				if got := geomIntersects(tt.b, tt.a); got != tt.want {
					t.Errorf("geomIntersects reversed = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

// TestGeomWithin tests strict containment.
func TestGeomWithin(t *testing.T) {
	tests := []struct {
		name string
		a, b orb.Geometry
		want bool
	}{
		{"point inside", orb.Point{2, 2}, unitSquare, true},
		{"point outside", orb.Point{5, 5}, unitSquare, false},
		{"line inside", orb.LineString{{1, 1}, {3, 3}}, unitSquare, true},
		{"line leaving", orb.LineString{{1, 1}, {9, 9}}, unitSquare, false},
		{"polygon inside", orb.Polygon{{{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1}}}, unitSquare, true},
		{"polygon overlapping", orb.Polygon{{{3, 3}, {6, 3}, {6, 6}, {3, 6}, {3, 3}}}, unitSquare, false},
		{"polygon outside", orb.Polygon{{{7, 7}, {8, 7}, {8, 8}, {7, 8}, {7, 7}}}, unitSquare, false},
		{"container not within contained", unitSquare, orb.Polygon{{{1, 1}, {3, 1}, {3, 3}, {1, 3}, {1, 1}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := geomWithin(tt.a, tt.b); got != tt.want {
				t.Errorf("geomWithin = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestGeomMultiPolygon tests dispatch over multi-part geometries.
func TestGeomMultiPolygon(t *testing.T) {
	mp := orb.MultiPolygon{
		{{{0, 0}, {2, 0}, {2, 2}, {0, 2}, {0, 0}}},
		{{{10, 10}, {12, 10}, {12, 12}, {10, 12}, {10, 10}}},
	}

	if !geomIntersects(orb.Point{11, 11}, mp) {
		t.Error("Expected point in second part to intersect")
	}
	if geomIntersects(orb.Point{5, 5}, mp) {
		t.Error("Expected point between parts not to intersect")
	}
	if !geomWithin(orb.Point{1, 1}, mp) {
		t.Error("Expected point in first part to be within")
	}
}
