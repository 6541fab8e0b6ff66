package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Snapshot is the persistent form of a history stack.
type Snapshot struct {
	States  []State `msgpack:"states"`
	Cursor  int     `msgpack:"cursor"`
	NextSeq uint64  `msgpack:"next_seq"`
}

// Codec serializes history snapshots as zstd-compressed msgpack.
// Create once and reuse; safe for concurrent use.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCodec creates a reusable snapshot codec.
// Caller must call Close() when done to release resources.
func NewCodec() (*Codec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Codec{encoder: encoder, decoder: decoder}, nil
}

// Encode serializes and compresses a snapshot.
func (c *Codec) Encode(s Snapshot) ([]byte, error) {
	raw, err := msgpack.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	// EncodeAll is goroutine-safe
	return c.encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// Decode decompresses and deserializes a snapshot.
func (c *Codec) Decode(data []byte) (Snapshot, error) {
	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	var s Snapshot
	if err := msgpack.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return s, nil
}

// Close releases codec resources.
func (c *Codec) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}

// Store persists encoded snapshots keyed by collection ID.
type Store interface {
	// Save writes the encoded snapshot for a collection.
	Save(ctx context.Context, collectionID string, data []byte) error

	// Load reads the encoded snapshot for a collection. The second return
	// is false when no snapshot exists.
	Load(ctx context.Context, collectionID string) ([]byte, bool, error)
}

// MemStore is an in-process Store.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemStore creates an empty in-process store.
func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

// Save implements Store.
func (m *MemStore) Save(_ context.Context, collectionID string, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.mu.Lock()
	m.data[collectionID] = cp
	m.mu.Unlock()
	return nil
}

// Load implements Store.
func (m *MemStore) Load(_ context.Context, collectionID string) ([]byte, bool, error) {
	m.mu.RLock()
	data, ok := m.data[collectionID]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}
