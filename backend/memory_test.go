package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/expr"
)

func memMeta() *catalog.Collection {
	return &catalog.Collection{
		ID:         "parcels",
		IDColumn:   "fid",
		GeomColumn: "geom",
		Kind:       catalog.KindMemory,
	}
}

func loadedMemory() *Memory {
	m := NewMemory(nil)
	m.Load("parcels", []Feature{
		{ID: 1, Geometry: orb.Point{1, 1}, Attrs: map[string]any{"zone": "A", "pop": 50}},
		{ID: 2, Geometry: orb.Point{5, 5}, Attrs: map[string]any{"zone": "A", "pop": 200}},
		{ID: 3, Geometry: orb.Point{9, 9}, Attrs: map[string]any{"zone": "B", "pop": 300}},
		{ID: 4, Geometry: nil, Attrs: map[string]any{"zone": "B", "pop": 10}},
	})
	return m
}

func wantIDs(t *testing.T, res *ExecutionResult, want ...uint64) {
	t.Helper()
	if res.Count != uint64(len(want)) {
		t.Fatalf("Count = %d, want %d (ids %v)", res.Count, len(want), res.FeatureIDs)
	}
	for _, id := range want {
		if _, ok := res.FeatureIDs[id]; !ok {
			t.Errorf("Expected feature %d in result %v", id, res.FeatureIDs)
		}
	}
}

// TestMemoryExecuteComparisons tests attribute filters over the feature
// store.
func TestMemoryExecuteComparisons(t *testing.T) {
	m := loadedMemory()
	ctx := context.Background()

	tests := []struct {
		name     string
		rendered string
		want     []uint64
	}{
		{"string equality", `zone = 'A'`, []uint64{1, 2}},
		{"numeric comparison", `pop >= 200`, []uint64{2, 3}},
		{"not equal", `zone <> 'A'`, []uint64{3, 4}},
		{"conjunction", `zone = 'A' AND pop > 100`, []uint64{2}},
		{"disjunction", `pop < 20 OR pop > 250`, []uint64{3, 4}},
		{"negation", `NOT zone = 'B'`, []uint64{1, 2}},
		{"id list", `fid IN (1, 3)`, []uint64{1, 3}},
		{"id range", `(fid >= 2 AND fid <= 3)`, []uint64{2, 3}},
		{"in strings", `zone IN ('B', 'C')`, []uint64{3, 4}},
		{"no match", `pop > 9000`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Execute(ctx, tt.rendered, memMeta())
			if err != nil {
				t.Fatalf("Execute(%q): %v", tt.rendered, err)
			}
			wantIDs(t, res, tt.want...)
		})
	}
}

// TestMemoryExecuteSpatial tests geometry predicates against a reference
// polygon.
func TestMemoryExecuteSpatial(t *testing.T) {
	m := loadedMemory()
	ctx := context.Background()

	// Square covering (0,0)-(6,6): features 1 and 2 fall inside.
	square := `'POLYGON((0 0, 6 0, 6 6, 0 6, 0 0))'`

	tests := []struct {
		name     string
		rendered string
		want     []uint64
	}{
		{"intersects", `intersects($geometry, geom_from_wkt(` + square + `))`, []uint64{1, 2}},
		{"within", `within($geometry, geom_from_wkt(` + square + `))`, []uint64{1, 2}},
		{"disjoint", `disjoint($geometry, geom_from_wkt(` + square + `))`, []uint64{3}},
		{"equals point", `equals($geometry, geom_from_wkt('POINT(9 9)'))`, []uint64{3}},
		{"spatial and attribute", `intersects($geometry, geom_from_wkt(` + square + `)) AND pop > 100`, []uint64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := m.Execute(ctx, tt.rendered, memMeta())
			if err != nil {
				t.Fatalf("Execute(%q): %v", tt.rendered, err)
			}
			wantIDs(t, res, tt.want...)
		})
	}
}

// TestMemoryExecuteRoundTrip tests that rendered expressions from the typed
// tree evaluate directly.
func TestMemoryExecuteRoundTrip(t *testing.T) {
	m := loadedMemory()
	meta := memMeta()

	e := expr.And(
		expr.NewSpatial(expr.Intersects, 0, orb.Polygon{{{0, 0}, {6, 0}, {6, 6}, {0, 6}, {0, 0}}}),
		expr.NewAttribute(`zone = 'A'`),
	)
	rendered, err := m.Render(e, meta)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	res, err := m.Execute(context.Background(), rendered, meta)
	if err != nil {
		t.Fatalf("Execute(%q): %v", rendered, err)
	}
	wantIDs(t, res, 1, 2)
}

// TestMemoryExecuteBadFilter tests parse failures surface as query errors.
func TestMemoryExecuteBadFilter(t *testing.T) {
	m := loadedMemory()
	tests := []string{
		`zone = `,
		`zone ~ 'A'`,
		`intersects(geom, geom_from_wkt('POINT(0 0)'))`,
		`intersects($geometry, geom_from_wkt('NOT WKT'))`,
		`zone = 'A' trailing`,
	}
	for _, rendered := range tests {
		_, err := m.Execute(context.Background(), rendered, memMeta())
		var qerr *QueryError
		if !errors.As(err, &qerr) {
			t.Errorf("Execute(%q): expected QueryError, got %v", rendered, err)
		}
	}
}

// TestMemoryExecuteCancelled tests context cancellation stops evaluation.
func TestMemoryExecuteCancelled(t *testing.T) {
	m := NewMemory(nil)
	features := make([]Feature, 5000)
	for i := range features {
		features[i] = Feature{ID: uint64(i + 1), Geometry: orb.Point{0, 0}}
	}
	m.Load("parcels", features)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Execute(ctx, `fid > 0`, memMeta())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

// TestMemoryIDColumnAlias tests $id and the metadata ID column both resolve
// to the feature identifier.
func TestMemoryIDColumnAlias(t *testing.T) {
	m := loadedMemory()
	for _, rendered := range []string{`$id = 2`, `fid = 2`, `FID = 2`} {
		res, err := m.Execute(context.Background(), rendered, memMeta())
		if err != nil {
			t.Fatalf("Execute(%q): %v", rendered, err)
		}
		wantIDs(t, res, 2)
	}
}

// TestMemoryCleanupNoOp tests cleanup succeeds with nothing to release.
func TestMemoryCleanupNoOp(t *testing.T) {
	if err := NewMemory(nil).Cleanup(context.Background(), memMeta()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
}
