// Package supervisor implements the liveness-supervision registry: the
// concrete Watcher and StabilizerHandle the stabilization core depends on.
// The membership bookkeeping (upsert/remove/mark, versioned snapshots) is
// modeled on the cluster-membership idiom used elsewhere in the example
// pack's caching layer, repurposed here for Chord peer supervision instead
// of cache-node gossip.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/transmitter"
)

// State is the liveness state of a watched peer.
type State int

const (
	StateAlive State = iota
	StateSuspect
	StateDead
)

func (s State) String() string {
	switch s {
	case StateAlive:
		return "alive"
	case StateSuspect:
		return "suspect"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// member tracks one watched peer's last known liveness.
type member struct {
	addr       peer.Address
	state      State
	lastSeen   time.Time
	suspectHit int
}

// Broadcaster publishes ring-topology events to whatever external surface
// cares to observe them (the HTTP/WebSocket layer). Declared here rather
// than imported from the api package to avoid a dependency cycle.
type Broadcaster interface {
	BroadcastRingUpdate(event any) error
}

// Event is the payload published to a Broadcaster.
type Event struct {
	Type      string `json:"type"`
	PeerID    string `json:"peer_id"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message"`
}

const (
	EventWatch     = "watch"
	EventUnwatch   = "unwatch"
	EventBankrupt  = "bankrupt"
	EventSuspicion = "suspicion"
)

// Registry is the concrete Watcher + StabilizerHandle. It also runs its
// own periodic liveness sweep, independent of the stabilizer's own
// per-step liveness probe, so that a dead successor is noticed even on
// ticks the stabilizer itself skips.
type Registry struct {
	mu       sync.Mutex
	members  map[string]*member
	dial     transmitter.Dialer
	interval time.Duration
	timeout  time.Duration
	maxMiss  int

	broadcaster Broadcaster
	logger      zerolog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
}

// Config configures a Registry's sweep cadence and failure threshold.
type Config struct {
	SweepInterval time.Duration
	ProbeTimeout  time.Duration
	// MaxMisses is how many consecutive failed sweeps turn a suspect peer
	// dead and trigger an Unwatch-equivalent removal.
	MaxMisses int
}

// DefaultConfig returns sensible sweep parameters.
func DefaultConfig() Config {
	return Config{
		SweepInterval: 5 * time.Second,
		ProbeTimeout:  3 * time.Second,
		MaxMisses:     2,
	}
}

// New builds a Registry and starts its background sweep goroutine.
func New(dial transmitter.Dialer, cfg Config, broadcaster Broadcaster, logger zerolog.Logger) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		members:     make(map[string]*member),
		dial:        dial,
		interval:    cfg.SweepInterval,
		timeout:     cfg.ProbeTimeout,
		maxMiss:     cfg.MaxMisses,
		broadcaster: broadcaster,
		logger:      logger.With().Str("component", "supervisor").Logger(),
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go r.sweepLoop(ctx)
	return r
}

// Watch registers interest in p's liveness. Idempotent.
func (r *Registry) Watch(p peer.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Dial()
	if _, ok := r.members[key]; ok {
		return
	}
	r.members[key] = &member{addr: p, state: StateAlive, lastSeen: time.Now()}
	r.publish(EventWatch, p, "now watching peer")
}

// Unwatch deregisters interest in p. Idempotent.
func (r *Registry) Unwatch(p peer.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := p.Dial()
	if _, ok := r.members[key]; !ok {
		return
	}
	delete(r.members, key)
	r.publish(EventUnwatch, p, "stopped watching peer")
}

// Stop halts the sweep loop. Safe to call more than once.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()
		r.cancel()
		<-r.done
	})
}

// IsStopped reports whether Stop has been called, used by node.Node's
// scheduler to skip further steps after bankruptcy.
func (r *Registry) IsStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *Registry) sweepLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepOnce(ctx)
		}
	}
}

func (r *Registry) sweepOnce(ctx context.Context) {
	r.mu.Lock()
	snapshot := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		snapshot = append(snapshot, m)
	}
	r.mu.Unlock()

	for _, m := range snapshot {
		probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
		alive, err := r.dial.Dial(m.addr).CheckLiving(probeCtx)
		cancel()

		r.mu.Lock()
		if err != nil || !alive {
			m.suspectHit++
			if m.suspectHit >= r.maxMiss {
				m.state = StateDead
				delete(r.members, m.addr.Dial())
				r.mu.Unlock()
				r.publish(EventUnwatch, m.addr, "sweep declared peer dead")
				continue
			}
			m.state = StateSuspect
			r.mu.Unlock()
			r.publish(EventSuspicion, m.addr, "sweep probe failed")
			continue
		}

		m.state = StateAlive
		m.lastSeen = time.Now()
		m.suspectHit = 0
		r.mu.Unlock()
	}
}

// publish does not acquire r.mu: Watch and Unwatch call it while holding
// r.mu, sweepOnce after releasing it.
func (r *Registry) publish(eventType string, p peer.Address, msg string) {
	r.logger.Debug().Str("event", eventType).Str("peer", p.String()).Msg(msg)
	if r.broadcaster == nil {
		return
	}
	_ = r.broadcaster.BroadcastRingUpdate(Event{
		Type:      eventType,
		PeerID:    p.ID.String(),
		Timestamp: time.Now().Unix(),
		Message:   msg,
	})
}
