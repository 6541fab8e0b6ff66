// Package history tracks the ordered stack of applied filter states for one
// collection and drives undo/redo. Semantics are classic linear history: a
// cursor marks the current state, applying after an undo truncates the
// redoable tail, and depth is bounded with oldest-first eviction.
package history

import (
	"fmt"

	"github.com/sducournau/filter-mate-sub019/catalog"
	"github.com/sducournau/filter-mate-sub019/expr"
	"github.com/sducournau/filter-mate-sub019/optimizer"
)

// DefaultMaxDepth bounds a history stack when no depth is configured.
const DefaultMaxDepth = 40

// InvariantError reports a corrupted history cursor. It is a programmer
// error: surfaced, never silently corrected.
type InvariantError struct {
	Cursor int
	Len    int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("history invariant violated: cursor %d outside [0, %d]", e.Cursor, e.Len)
}

// State is one applied filter step.
type State struct {
	// Raw is the typed expression this step was built from. Not carried
	// in snapshots; re-application uses Rendered.
	Raw expr.Expression `msgpack:"-"`

	// Rendered is the backend-native filter text confirmed as applied.
	Rendered string `msgpack:"rendered"`

	// Kind is the backend the text was rendered for.
	Kind catalog.BackendKind `msgpack:"kind"`

	// Seq totally orders states within the collection.
	Seq uint64 `msgpack:"seq"`

	// ResultCount is the matching feature count, nil when unknown.
	ResultCount *uint64 `msgpack:"result_count"`

	// Optimization tags the rewrite that produced Rendered. Diagnostic
	// only; nothing branches on it.
	Optimization optimizer.OptimizationType `msgpack:"optimization"`
}

// History is the per-collection undo/redo stack. Not safe for concurrent
// use; the orchestrator serializes access per collection.
type History struct {
	states   []State
	cursor   int
	maxDepth int
	nextSeq  uint64
}

// New creates an empty history. maxDepth <= 0 selects DefaultMaxDepth.
func New(maxDepth int) *History {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &History{maxDepth: maxDepth}
}

// Len returns the number of recorded states.
func (h *History) Len() int { return len(h.states) }

// Cursor returns the current cursor position in [0, Len()].
func (h *History) Cursor() int { return h.cursor }

// Current returns the state last confirmed as applied, or nil when the
// collection is unfiltered.
func (h *History) Current() *State {
	if h.cursor == 0 {
		return nil
	}
	return &h.states[h.cursor-1]
}

// NextSeq allocates the sequence number for the next applied state.
func (h *History) NextSeq() uint64 {
	h.nextSeq++
	return h.nextSeq
}

// Apply records a newly applied state. Any states after the cursor (a
// redoable branch left by undo) are discarded first. When depth exceeds the
// bound, the oldest state is evicted; eviction never changes which state is
// current.
func (h *History) Apply(s State) error {
	if err := h.check(); err != nil {
		return err
	}

	if h.cursor < len(h.states) {
		h.states = h.states[:h.cursor]
	}
	h.states = append(h.states, s)
	h.cursor = len(h.states)

	if len(h.states) > h.maxDepth {
		h.states = h.states[1:]
		h.cursor--
	}
	return nil
}

// Undo steps the cursor back one state. Returns the state that should now be
// applied to the live collection: nil with ok=true means "unfiltered", and
// ok=false means there was nothing to undo and the history is unchanged.
func (h *History) Undo() (*State, bool, error) {
	if err := h.check(); err != nil {
		return nil, false, err
	}
	if h.cursor == 0 {
		return nil, false, nil
	}
	h.cursor--
	if h.cursor == 0 {
		return nil, true, nil
	}
	return &h.states[h.cursor-1], true, nil
}

// Redo steps the cursor forward one state. Returns the state to re-apply, or
// ok=false when there is nothing to redo.
func (h *History) Redo() (*State, bool, error) {
	if err := h.check(); err != nil {
		return nil, false, err
	}
	if h.cursor == len(h.states) {
		return nil, false, nil
	}
	s := &h.states[h.cursor]
	h.cursor++
	return s, true, nil
}

func (h *History) check() error {
	if h.cursor < 0 || h.cursor > len(h.states) {
		return &InvariantError{Cursor: h.cursor, Len: len(h.states)}
	}
	return nil
}

// Snapshot captures the history for persistence.
func (h *History) Snapshot() Snapshot {
	states := make([]State, len(h.states))
	copy(states, h.states)
	return Snapshot{States: states, Cursor: h.cursor, NextSeq: h.nextSeq}
}

// Restore replaces the history content from a snapshot.
func (h *History) Restore(s Snapshot) error {
	if s.Cursor < 0 || s.Cursor > len(s.States) {
		return &InvariantError{Cursor: s.Cursor, Len: len(s.States)}
	}
	h.states = make([]State, len(s.States))
	copy(h.states, s.States)
	h.cursor = s.Cursor
	h.nextSeq = s.NextSeq
	return nil
}
