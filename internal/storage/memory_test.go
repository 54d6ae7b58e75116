package storage

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/chordkeep/internal/ringid"
)

func TestSetGetRoundTrip(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, []byte("k"), []byte("v1")))

	v, ok, err := m.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)
}

func TestSetTwiceIsIdempotent(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, []byte("k"), []byte("v")))
	require.NoError(t, m.Set(ctx, []byte("k"), []byte("v")))

	v, ok, err := m.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}

func TestDeleteAbsentKeyIsNotError(t *testing.T) {
	m := NewMemory(0)
	assert.NoError(t, m.Delete(context.Background(), []byte("missing")))
}

func TestGetMissingKey(t *testing.T) {
	m := NewMemory(0)
	_, ok, err := m.Get(context.Background(), []byte("missing"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeysReflectsStoredEntries(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, []byte("a"), []byte("1")))
	require.NoError(t, m.Set(ctx, []byte("b"), []byte("2")))

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestSetWithTTLExpires(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, []byte("k"), []byte("v"), 10*time.Millisecond))
	time.Sleep(25 * time.Millisecond)

	_, ok, err := m.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetKeysInRangeFiltersByHash(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, []byte("a"), []byte("1")))
	require.NoError(t, m.Set(ctx, []byte("b"), []byte("2")))

	all, err := m.GetKeysInRange(ctx, ringid.New(big.NewInt(0)), ringid.MaxID())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	// (x, x] is the whole ring, so a one-point range (0, 1] is used here.
	none, err := m.GetKeysInRange(ctx, ringid.New(big.NewInt(0)), ringid.New(big.NewInt(1)))
	require.NoError(t, err)
	assert.Len(t, none, 0)
}

func TestDeleteKeysInRangeRemovesMatches(t *testing.T) {
	m := NewMemory(0)
	ctx := context.Background()
	require.NoError(t, m.Set(ctx, []byte("a"), []byte("1")))
	require.NoError(t, m.Set(ctx, []byte("b"), []byte("2")))

	n, err := m.DeleteKeysInRange(ctx, ringid.New(big.NewInt(0)), ringid.MaxID())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err := m.Keys(ctx)
	require.NoError(t, err)
	assert.Len(t, keys, 0)
}

func TestBackgroundSweepEvictsExpiredEntries(t *testing.T) {
	m := NewMemory(5 * time.Millisecond)
	t.Cleanup(func() { _ = m.Close() })
	ctx := context.Background()

	require.NoError(t, m.SetWithTTL(ctx, []byte("k"), []byte("v"), 5*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, 0, m.Stats().Entries)
}
