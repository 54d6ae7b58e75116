// Package nodefinder implements the pure routing decision used both by the
// stabilizer, to resolve a chunk's authoritative custodian, and by the
// transport layer's FindNode RPC handler.
package nodefinder

import (
	"math/big"

	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
)

// Callbacks resolves exactly one of its three members per Judge call.
// Judge carries no I/O of its own; every side effect (replying to a
// caller, forwarding a message) is delegated here so the decision itself
// stays trivially testable.
type Callbacks struct {
	// OnSelfOwns fires when self is either alone on the ring or is itself
	// the target.
	OnSelfOwns func()

	// OnSuccessorOwns fires when target falls in (self, successor].
	OnSuccessorOwns func()

	// OnForward fires when neither self nor its immediate successor owns
	// target; the caller is expected to forward the lookup to the
	// closest preceding finger.
	OnForward func()
}

// Judge decides, given target and the caller's current self/successor
// pair, which of the three Callbacks members to invoke. Exactly one is
// called.
func Judge(target ringid.ID, self, successor peer.Address, cb Callbacks) {
	if successor.Equal(self) || target.Equal(self.ID) {
		cb.OnSelfOwns()
		return
	}
	if ringid.InRange(target, self.ID, successor.ID) {
		cb.OnSuccessorOwns()
		return
	}
	cb.OnForward()
}

// ClosestPreceding scans amongst (ordered arbitrarily; no ordering is
// assumed) for the entry closest-preceding target on the ring, falling
// back to self if none qualifies. This is the helper OnForward handlers
// use to pick where to forward a lookup, grounded on the same
// finger-table-scan idiom the stabilizer's own successor search uses.
func ClosestPreceding(target ringid.ID, self peer.Address, amongst []peer.Address) peer.Address {
	best := self
	bestDist := new(big.Int)
	for _, candidate := range amongst {
		if candidate.Equal(self) {
			continue
		}
		if !ringid.Between(candidate.ID, self.ID, target) {
			continue
		}
		d := ringid.Distance(self.ID, candidate.ID)
		if d.Cmp(bestDist) > 0 {
			best = candidate
			bestDist = d
		}
	}
	return best
}
