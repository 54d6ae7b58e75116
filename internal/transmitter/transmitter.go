// Package transmitter declares the collaborator contracts the stabilizer
// and node finder depend on but never implement directly: the RPC surface
// to a peer, the liveness-supervision registry, and the handle used to
// halt a node's own stabilization loop.
package transmitter

import (
	"context"
	"errors"

	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
)

// Sentinel errors for the peer conditions the core distinguishes. Callers
// in the stabilizer treat any non-nil error as "unreachable" regardless of
// kind. The gRPC Transmitter in package transport returns the gRPC errors
// as they come rather than these sentinels; node.Node.Bootstrap returns
// ErrPeerUnreachable when its join finds no successor.
var (
	// ErrPeerUnreachable indicates the RPC timed out or the transport could
	// not be established.
	ErrPeerUnreachable = errors.New("transmitter: peer unreachable")

	// ErrPeerReportedAbsence indicates the RPC succeeded but the peer
	// explicitly reported that it has no predecessor/successor.
	ErrPeerReportedAbsence = errors.New("transmitter: peer reported absence")
)

// Transmitter is the per-peer RPC surface the stabilizer and node finder
// drive. Every method is blocking and must honor ctx's deadline; a timeout
// is reported the same way as any other unreachable-peer condition.
type Transmitter interface {
	// CheckLiving probes whether the peer is alive and answering RPCs.
	CheckLiving(ctx context.Context) (bool, error)

	// YourPredecessor asks the peer for its current predecessor. A nil
	// address with a nil error means the peer has none.
	YourPredecessor(ctx context.Context) (*peer.Address, error)

	// YourSuccessor asks the peer for its nearest successor.
	YourSuccessor(ctx context.Context) (*peer.Address, error)

	// AmIPredecessor informs the peer that self claims to be its
	// predecessor. The peer accepts or ignores the claim; failures are
	// logged by the caller, never fatal.
	AmIPredecessor(ctx context.Context, self peer.Address) error

	// FindNode resolves the authoritative custodian of target by routing
	// through the peer's own finger table.
	FindNode(ctx context.Context, target ringid.ID) (*peer.Address, error)

	// SetChunk stores (key, value) on the peer. Implementations must make
	// re-application of an identical pair a no-op.
	SetChunk(ctx context.Context, key, value []byte) error

	// GetSuccessorList asks the peer for its own successor list. The
	// stabilizer does not call it; increaseSuccessor extends the local list
	// with YourSuccessor.
	GetSuccessorList(ctx context.Context) ([]peer.Address, error)
}

// Dialer resolves a peer.Address into a live Transmitter. The core never
// dials a socket directly; it asks a Dialer, which the transport package
// implements over gRPC.
type Dialer interface {
	Dial(p peer.Address) Transmitter
}

// Watcher registers and deregisters interest in a peer's liveness with the
// supervision layer. Both operations must be idempotent: watching an
// already-watched peer, or unwatching one that was never watched, is a
// no-op rather than an error.
type Watcher interface {
	Watch(p peer.Address)
	Unwatch(p peer.Address)
}

// StabilizerHandle lets the stabilizer halt its own future scheduling, the
// terminal action taken on bankruptcy.
type StabilizerHandle interface {
	Stop()
}

// DataHolder is the locally held chunk store the stabilizer migrates data
// into and out of. Keys are opaque byte sequences; hashing them onto the
// ring is the caller's responsibility via ringid.HashBytes.
type DataHolder interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	Set(ctx context.Context, key, value []byte) error
	Delete(ctx context.Context, key []byte) error

	// Keys returns every key currently held, for the stabilizer to compute
	// which chunks must migrate after a topology change.
	Keys(ctx context.Context) ([][]byte, error)

	// GetKeysInRange returns every held key whose hash falls in
	// (start, end] on the ring, the fast path ImmigrateData uses to
	// enumerate chunks that fall in the successor's range directly,
	// without a per-key InRange check against the full key set.
	GetKeysInRange(ctx context.Context, start, end ringid.ID) ([][]byte, error)

	// DeleteKeysInRange removes every held key whose hash falls in
	// (start, end], returning how many were removed. ImmigrateData uses
	// it to delete the successor-range subset of a migrated batch in one
	// call rather than one Delete per key.
	DeleteKeysInRange(ctx context.Context, start, end ringid.ID) (int, error)
}
