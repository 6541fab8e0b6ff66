package history

import (
	"context"
	"testing"

	"github.com/sducournau/filter-mate-sub019/catalog"
)

// TestCodecRoundTrip verifies encode/decode preserves states, cursor and
// sequence counter.
func TestCodecRoundTrip(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer codec.Close()

	count := uint64(42)
	snap := Snapshot{
		States: []State{
			{Rendered: `zone = 'A'`, Kind: catalog.KindPostgres, Seq: 1, ResultCount: &count, Optimization: "none"},
			{Rendered: `fid IN (1, 2, 3)`, Kind: catalog.KindPostgres, Seq: 2},
		},
		Cursor:  1,
		NextSeq: 2,
	}

	data, err := codec.Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(got.States) != 2 || got.Cursor != 1 || got.NextSeq != 2 {
		t.Fatalf("Round trip mismatch: %+v", got)
	}
	if got.States[0].Rendered != `zone = 'A'` || got.States[0].Kind != catalog.KindPostgres {
		t.Errorf("State 0 mismatch: %+v", got.States[0])
	}
	if got.States[0].ResultCount == nil || *got.States[0].ResultCount != 42 {
		t.Errorf("Expected result count 42, got %v", got.States[0].ResultCount)
	}
	if got.States[1].ResultCount != nil {
		t.Errorf("Expected nil result count, got %v", got.States[1].ResultCount)
	}
}

// TestCodecDecodeGarbage verifies corrupt input fails cleanly.
func TestCodecDecodeGarbage(t *testing.T) {
	codec, err := NewCodec()
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	defer codec.Close()

	if _, err := codec.Decode([]byte("not a snapshot")); err == nil {
		t.Fatal("Expected error decoding garbage")
	}
}

// TestMemStore verifies save/load semantics and the missing-key case.
func TestMemStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemStore()

	if _, ok, err := store.Load(ctx, "parcels"); err != nil || ok {
		t.Fatalf("Expected missing snapshot, got ok=%v err=%v", ok, err)
	}

	if err := store.Save(ctx, "parcels", []byte{1, 2, 3}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, ok, err := store.Load(ctx, "parcels")
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if len(data) != 3 || data[0] != 1 {
		t.Errorf("Load returned %v", data)
	}

	// Stored bytes are isolated from caller mutation.
	data[0] = 99
	again, _, _ := store.Load(ctx, "parcels")
	if again[0] != 1 {
		t.Error("Expected stored bytes to be unaffected by caller mutation")
	}
}
