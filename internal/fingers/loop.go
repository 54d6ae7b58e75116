// Package fingers implements the independent finger-table maintenance
// loop assumed by the stabilization core: a periodic task that advances a
// cursor over the M finger slots and resolves each one via the same
// routing decision the node finder uses for external lookups.
package fingers

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringkeeper/chordkeep/internal/chordstate"
	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
)

// Finder resolves the authoritative custodian of a ring identifier,
// mirroring the same collaborator the stabilizer depends on.
type Finder interface {
	FindNode(ctx context.Context, target ringid.ID) (*peer.Address, error)
}

// Loop periodically resolves one finger target at a time, round-robin over
// the slots, and appends the peer found to FingerList in the shared
// chordstate.Cell. FingerList is not indexed by slot: a peer already present
// is not added twice, and existing entries are never replaced or removed.
// It never writes SuccList or Pred; those remain the stabilizer's exclusive
// responsibility.
type Loop struct {
	cell     *chordstate.Cell
	finder   Finder
	interval time.Duration
	slots    int
	cursor   int
	logger   zerolog.Logger
}

// New builds a Loop over slots finger positions (normally ringid.Bits).
func New(cell *chordstate.Cell, finder Finder, interval time.Duration, slots int, logger zerolog.Logger) *Loop {
	if slots <= 0 {
		slots = ringid.Bits
	}
	return &Loop{
		cell:     cell,
		finder:   finder,
		interval: interval,
		slots:    slots,
		logger:   logger.With().Str("component", "fingers").Logger(),
	}
}

// Run blocks, refreshing one finger per tick, until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.fixNext(ctx)
		}
	}
}

func (l *Loop) fixNext(ctx context.Context) {
	state := l.cell.Load()
	target := ringid.AddPowerOfTwo(state.Self.ID, l.cursor)

	found, err := l.finder.FindNode(ctx, target)
	l.cursor = (l.cursor + 1) % l.slots

	if err != nil || found == nil {
		l.logger.Debug().Err(err).Int("slot", l.cursor).Msg("finger refresh failed, will retry next tick")
		return
	}

	l.cell.Update(func(s chordstate.State) chordstate.State {
		s.FingerList = s.FingerList.Append(*found).Truncate(l.slots)
		return s
	})
}
