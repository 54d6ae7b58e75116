// Package storage implements the concrete DataHolder backing a node's
// locally held chunks. It is modeled on the teacher's pkg/memory.go
// MemoryStorage: a thread-safe map with optional per-entry TTL and a
// background cleanup sweep, trimmed of the Increment/SetMultiple surface
// the stabilization core never exercises.
package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringkeeper/chordkeep/internal/ringid"
)

// ErrKeyNotFound is the sentinel for an absent key. Get does not return it:
// Get reports an absent key with ok == false and a nil error.
var ErrKeyNotFound = errors.New("storage: key not found")

// entry is a stored value with an optional expiration. A zero expiresAt
// means the entry never expires.
type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Memory is a thread-safe, in-memory DataHolder with optional TTL
// expiration, swept by a background goroutine.
type Memory struct {
	mu   sync.RWMutex
	data map[string]*entry

	hits      atomic.Int64
	misses    atomic.Int64
	sets      atomic.Int64
	deletes   atomic.Int64
	evictions atomic.Int64

	cleanupTicker *time.Ticker
	done          chan struct{}
	closed        atomic.Bool
}

// Stats reports simple hit/miss/eviction counters, surfaced by the HTTP API.
type Stats struct {
	Entries   int
	Hits      int64
	Misses    int64
	Sets      int64
	Deletes   int64
	Evictions int64
}

// NewMemory creates an empty store whose background cleanup sweep runs
// every interval. An interval of zero disables the sweep; entries with a
// TTL are still checked lazily on Get.
func NewMemory(interval time.Duration) *Memory {
	m := &Memory{
		data: make(map[string]*entry),
		done: make(chan struct{}),
	}
	if interval > 0 {
		m.cleanupTicker = time.NewTicker(interval)
		go m.sweepLoop()
	}
	return m
}

// Close stops the background sweep. Safe to call even if none was started.
func (m *Memory) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	if m.cleanupTicker != nil {
		m.cleanupTicker.Stop()
	}
	close(m.done)
	return nil
}

func (m *Memory) sweepLoop() {
	for {
		select {
		case <-m.cleanupTicker.C:
			m.sweepExpired()
		case <-m.done:
			return
		}
	}
}

func (m *Memory) sweepExpired() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
			m.evictions.Add(1)
		}
	}
}

// Get retrieves the value for key, reporting false if absent or expired.
func (m *Memory) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	e, ok := m.data[string(key)]
	m.mu.RUnlock()

	if !ok {
		m.misses.Add(1)
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		m.mu.Lock()
		delete(m.data, string(key))
		m.mu.Unlock()
		m.misses.Add(1)
		m.evictions.Add(1)
		return nil, false, nil
	}
	m.hits.Add(1)

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set stores value under key with no expiration, satisfying the
// transmitter.DataHolder contract. Setting an identical (key, value) pair
// twice is a no-op from the caller's perspective.
func (m *Memory) Set(ctx context.Context, key, value []byte) error {
	return m.SetWithTTL(ctx, key, value, 0)
}

// SetWithTTL stores value under key, expiring it after ttl (zero means
// never). Used by callers that want chunk expiry beyond what the core
// DataHolder contract requires.
func (m *Memory) SetWithTTL(ctx context.Context, key, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v := make([]byte, len(value))
	copy(v, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	m.data[string(key)] = &entry{value: v, expiresAt: expiresAt}
	m.mu.Unlock()

	m.sets.Add(1)
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Memory) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.data, string(key))
	m.mu.Unlock()

	m.deletes.Add(1)
	return nil
}

// Keys returns every non-expired key currently held, in no particular order.
func (m *Memory) Keys(ctx context.Context) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]byte, 0, len(m.data))
	for k, e := range m.data {
		if e.expired(now) {
			continue
		}
		out = append(out, []byte(k))
	}
	return out, nil
}

// GetAll returns a snapshot of every non-expired key/value pair.
func (m *Memory) GetAll(ctx context.Context) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]byte, len(m.data))
	for k, e := range m.data {
		if e.expired(now) {
			continue
		}
		vv := make([]byte, len(e.value))
		copy(vv, e.value)
		out[k] = vv
	}
	return out, nil
}

// GetKeysInRange returns every non-expired key whose hash falls in
// (start, end] on the ring, the predicate ImmigrateData uses to enumerate
// candidate chunks without reaching into storage internals directly.
func (m *Memory) GetKeysInRange(ctx context.Context, start, end ringid.ID) ([][]byte, error) {
	keys, err := m.Keys(ctx)
	if err != nil {
		return nil, err
	}

	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if ringid.InRange(ringid.HashBytes(k), start, end) {
			out = append(out, k)
		}
	}
	return out, nil
}

// DeleteKeysInRange removes every key whose hash falls in (start, end],
// returning how many were removed.
func (m *Memory) DeleteKeysInRange(ctx context.Context, start, end ringid.ID) (int, error) {
	keys, err := m.GetKeysInRange(ctx, start, end)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := m.Delete(ctx, k); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// Stats reports current counters.
func (m *Memory) Stats() Stats {
	m.mu.RLock()
	n := len(m.data)
	m.mu.RUnlock()

	return Stats{
		Entries:   n,
		Hits:      m.hits.Load(),
		Misses:    m.misses.Load(),
		Sets:      m.sets.Load(),
		Deletes:   m.deletes.Load(),
		Evictions: m.evictions.Load(),
	}
}
