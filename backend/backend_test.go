package backend

import (
	"strings"
	"testing"

	"github.com/sducournau/filter-mate-sub019/catalog"
)

// TestEphemeralName tests name derivation is deterministic and
// prefix-scoped.
func TestEphemeralName(t *testing.T) {
	a := EphemeralName(ViewPrefix, `zone = 'A'`)
	b := EphemeralName(ViewPrefix, `zone = 'A'`)
	if a != b {
		t.Errorf("Expected deterministic names, got %s and %s", a, b)
	}
	if !strings.HasPrefix(a, ViewPrefix) {
		t.Errorf("Expected prefix %s, got %s", ViewPrefix, a)
	}
	if len(a) != len(ViewPrefix)+16 {
		t.Errorf("Expected 16 hex digits after prefix, got %s", a)
	}

	c := EphemeralName(ViewPrefix, `zone = 'B'`)
	if a == c {
		t.Error("Expected different texts to yield different names")
	}

	d := EphemeralName(TempPrefix, `zone = 'A'`)
	if !strings.HasPrefix(d, TempPrefix) {
		t.Errorf("Expected prefix %s, got %s", TempPrefix, d)
	}
}

// TestForKind tests strategy selection.
func TestForKind(t *testing.T) {
	mem := NewMemory(nil)
	strategies := []Strategy{mem}

	got, err := ForKind(strategies, catalog.KindMemory)
	if err != nil {
		t.Fatalf("ForKind: %v", err)
	}
	if got != mem {
		t.Error("Expected the registered memory strategy")
	}

	if _, err := ForKind(strategies, catalog.KindPostgres); err == nil {
		t.Error("Expected error for unregistered kind")
	}
}
