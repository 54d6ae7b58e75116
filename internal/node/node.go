// Package node wires the stabilization core's collaborators into a single
// object a transport server can drive: it implements
// transport.ChordServiceServer by reading/writing a chordstate.Cell, and it
// implements the local half of NodeFinder (the recursive FindNode lookup
// nodefinder.Judge decides between answering directly and forwarding)
// that both the stabilizer's migration step and fingers.Loop depend on.
package node

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringkeeper/chordkeep/internal/chordstate"
	"github.com/ringkeeper/chordkeep/internal/nodefinder"
	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
	"github.com/ringkeeper/chordkeep/internal/stabilizer"
	"github.com/ringkeeper/chordkeep/internal/transmitter"
)

// Node answers the ChordService RPC surface on behalf of the local
// chordstate.Cell and runs the stabilization and finger-fixing loops
// against it.
type Node struct {
	cell   *chordstate.Cell
	dial   transmitter.Dialer
	stab   *stabilizer.Stabilizer
	logger zerolog.Logger

	interval time.Duration
}

// New builds a Node. cell must already hold an initialized chordstate.State
// (normally chordstate.New(self, holder, handle)).
func New(cell *chordstate.Cell, dial transmitter.Dialer, watch transmitter.Watcher, timeouts stabilizer.Timeouts, stabilizeInterval time.Duration, logger zerolog.Logger) *Node {
	n := &Node{
		cell:     cell,
		dial:     dial,
		logger:   logger.With().Str("component", "node").Logger(),
		interval: stabilizeInterval,
	}
	n.stab = stabilizer.New(dial, watch, n, timeouts, logger)
	return n
}

// FindNode resolves target's authoritative custodian, forwarding the
// lookup to the closest preceding known peer when neither self nor its
// immediate successor owns it. This is the recursive RPC half of the
// routing decision nodefinder.Judge describes.
func (n *Node) FindNode(ctx context.Context, target ringid.ID) (*peer.Address, error) {
	state := n.cell.Load()
	self := state.Self
	succ := state.SuccList.NearestSuccessor(self)

	var (
		result *peer.Address
		rerr   error
	)

	nodefinder.Judge(target, self, succ, nodefinder.Callbacks{
		OnSelfOwns: func() {
			result = &self
		},
		OnSuccessorOwns: func() {
			result = &succ
		},
		OnForward: func() {
			amongst := append(state.SuccList.Slice(), state.FingerList.Slice()...)
			next := nodefinder.ClosestPreceding(target, self, amongst)
			if next.Equal(self) {
				result = &self
				return
			}
			fwd, err := n.dial.Dial(next).FindNode(ctx, target)
			result, rerr = fwd, err
		},
	})

	return result, rerr
}

// CheckLiving always reports true: answering the RPC at all is the proof
// of liveness.
func (n *Node) CheckLiving(ctx context.Context) (bool, error) {
	return true, nil
}

// YourPredecessor returns the current predecessor, or nil if none is set.
func (n *Node) YourPredecessor(ctx context.Context) (*peer.Address, error) {
	return n.cell.Load().Pred, nil
}

// YourSuccessor returns the nearest successor.
func (n *Node) YourSuccessor(ctx context.Context) (*peer.Address, error) {
	state := n.cell.Load()
	succ := state.SuccList.NearestSuccessor(state.Self)
	return &succ, nil
}

// AmIPredecessor implements the classic Chord Notify: self claims to be
// our predecessor. We accept the claim if we have none, or if self falls
// strictly between our current predecessor and us.
func (n *Node) AmIPredecessor(ctx context.Context, self peer.Address) error {
	n.cell.Update(func(s chordstate.State) chordstate.State {
		if s.Pred == nil || ringid.Between(self.ID, s.Pred.ID, s.Self.ID) {
			s.Pred = &self
		}
		return s
	})
	return nil
}

// SetChunk stores (key, value) locally, the handler side of chunk
// migration and client writes.
func (n *Node) SetChunk(ctx context.Context, key, value []byte) error {
	state := n.cell.Load()
	if state.DataHolder == nil {
		return nil
	}
	return state.DataHolder.Set(ctx, key, value)
}

// GetSuccessorList returns a defensive copy of the current successor list.
func (n *Node) GetSuccessorList(ctx context.Context) ([]peer.Address, error) {
	return n.cell.Load().SuccList.Slice(), nil
}

// Bootstrap performs the initial join against via, replacing the node's
// successor list with whatever via reports should succeed self. A zero
// peer.Address (no bootstrap configured) leaves the node alone on its own
// ring.
func (n *Node) Bootstrap(ctx context.Context, via peer.Address) error {
	if via.IsZero() {
		return nil
	}
	state := n.cell.Load()
	newState, succ := n.stab.JoinNetwork(ctx, state, via)
	if succ == nil {
		return transmitter.ErrPeerUnreachable
	}
	n.cell.Store(newState)
	return nil
}

// Run drives Stabilizer.Step on a ticker until ctx is canceled, skipping a
// tick if the previous one is still in flight (single-runner discipline)
// and honoring the StabilizerHandle's stopped state.
func (n *Node) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	busy := make(chan struct{}, 1)
	busy <- struct{}{}

	for {
		select {
		case <-ctx.Done():
			<-busy
			return
		case <-ticker.C:
			select {
			case <-busy:
			default:
				continue
			}
			n.step(ctx)
			busy <- struct{}{}
		}
	}
}

func (n *Node) step(ctx context.Context) {
	state := n.cell.Load()
	if h, ok := state.Handle.(interface{ IsStopped() bool }); ok && h.IsStopped() {
		return
	}
	newState, err := n.stab.Step(ctx, state)
	if err != nil {
		n.logger.Error().Err(err).Msg("stabilization step failed")
		return
	}
	n.cell.Store(newState)
}

// State returns the current snapshot, used by the HTTP inspection API.
func (n *Node) State() chordstate.State {
	return n.cell.Load()
}
