package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
	"github.com/ringkeeper/chordkeep/internal/transmitter"
)

type stubDialer struct {
	mu    sync.Mutex
	alive bool
}

func (d *stubDialer) Dial(p peer.Address) transmitter.Transmitter {
	d.mu.Lock()
	defer d.mu.Unlock()
	alive := d.alive
	return livenessOnlyTransmitter{alive: alive}
}

func (d *stubDialer) setAlive(v bool) {
	d.mu.Lock()
	d.alive = v
	d.mu.Unlock()
}

// livenessOnlyTransmitter implements transmitter.Transmitter with only
// CheckLiving behaving meaningfully; the registry never calls the rest.
type livenessOnlyTransmitter struct {
	alive bool
}

func (t livenessOnlyTransmitter) CheckLiving(ctx context.Context) (bool, error) {
	return t.alive, nil
}
func (t livenessOnlyTransmitter) YourPredecessor(ctx context.Context) (*peer.Address, error) {
	return nil, nil
}
func (t livenessOnlyTransmitter) YourSuccessor(ctx context.Context) (*peer.Address, error) {
	return nil, nil
}
func (t livenessOnlyTransmitter) AmIPredecessor(ctx context.Context, self peer.Address) error {
	return nil
}
func (t livenessOnlyTransmitter) FindNode(ctx context.Context, target ringid.ID) (*peer.Address, error) {
	return nil, nil
}
func (t livenessOnlyTransmitter) SetChunk(ctx context.Context, key, value []byte) error { return nil }
func (t livenessOnlyTransmitter) GetSuccessorList(ctx context.Context) ([]peer.Address, error) {
	return nil, nil
}

func TestWatchUnwatchIdempotent(t *testing.T) {
	dialer := &stubDialer{alive: true}
	r := New(dialer, Config{SweepInterval: time.Hour, ProbeTimeout: time.Second, MaxMisses: 2}, nil, zerolog.Nop())
	defer r.Stop()

	p := peer.FromHostPort("127.0.0.1", 9001)
	r.Watch(p)
	r.Watch(p) // idempotent
	require.Len(t, r.members, 1)

	r.Unwatch(p)
	r.Unwatch(p) // idempotent
	assert.Len(t, r.members, 0)
}

func TestSweepDeclaresDeadAfterMaxMisses(t *testing.T) {
	dialer := &stubDialer{alive: false}
	r := New(dialer, Config{SweepInterval: 10 * time.Millisecond, ProbeTimeout: time.Second, MaxMisses: 2}, nil, zerolog.Nop())
	defer r.Stop()

	p := peer.FromHostPort("127.0.0.1", 9002)
	r.Watch(p)

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, stillWatched := r.members[p.Dial()]
		return !stillWatched
	}, time.Second, 5*time.Millisecond)
}

func TestStopIsIdempotent(t *testing.T) {
	dialer := &stubDialer{alive: true}
	r := New(dialer, DefaultConfig(), nil, zerolog.Nop())
	r.Stop()
	r.Stop()
	assert.True(t, r.IsStopped())
}
