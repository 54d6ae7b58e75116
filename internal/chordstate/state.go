// Package chordstate holds the pure snapshot the stabilizer reads and
// replaces on every tick.
package chordstate

import (
	"sync"

	"github.com/ringkeeper/chordkeep/internal/nodelist"
	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/transmitter"
)

// State is the value a single stabilization step consumes and produces. It
// carries no behavior of its own; every field is a plain value or an
// injected collaborator.
type State struct {
	Self       peer.Address
	Pred       *peer.Address
	SuccList   nodelist.List
	FingerList nodelist.List
	DataHolder transmitter.DataHolder
	Handle     transmitter.StabilizerHandle
}

// New builds the initial state for a freshly created (not yet joined)
// node: alone on the ring, no predecessor.
func New(self peer.Address, holder transmitter.DataHolder, handle transmitter.StabilizerHandle) State {
	return State{
		Self:       self,
		Pred:       nil,
		SuccList:   nodelist.Of(self),
		FingerList: nodelist.Of(self),
		DataHolder: holder,
		Handle:     handle,
	}
}

// Cell is a guarded mutable reference to a State, giving external callers
// (the HTTP inspection endpoint, the finger-fixing loop) a snapshot view
// without granting write access to the stabilizer's internals. Store is
// called by the scheduler driving Stabilizer.Step and by node setup before
// that scheduler starts; writers running alongside it use Update. Any
// number of goroutines may call Load concurrently.
type Cell struct {
	mu sync.RWMutex
	s  State
}

// NewCell wraps an initial State in a Cell.
func NewCell(initial State) *Cell {
	return &Cell{s: initial}
}

// Load returns the current snapshot.
func (c *Cell) Load() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

// Store atomically replaces the snapshot. Called by the single-runner
// stabilization scheduler, and by node setup before that scheduler starts.
func (c *Cell) Store(s State) {
	c.mu.Lock()
	c.s = s
	c.mu.Unlock()
}

// Update applies fn to the current snapshot and stores the result, holding
// the lock across the whole read-modify-write so the operation is atomic
// with respect to concurrent Load/Store/Update calls. Used by RPC handlers
// (AmIPredecessor's Notify) that touch Pred from outside the scheduler's
// single-runner Step.
func (c *Cell) Update(fn func(State) State) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s = fn(c.s)
	return c.s
}
