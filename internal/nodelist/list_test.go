package nodelist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/chordkeep/internal/peer"
)

func addr(n int) peer.Address {
	return peer.FromHostPort("127.0.0.1", 9000+n)
}

func TestNearestSuccessorSkipsSelf(t *testing.T) {
	self := addr(1)
	b := addr(2)
	l := Of(self, b)

	got := l.NearestSuccessor(self)
	assert.True(t, got.Equal(b))
}

func TestNearestSuccessorAloneReturnsSelf(t *testing.T) {
	self := addr(1)
	l := Of(self)

	got := l.NearestSuccessor(self)
	assert.True(t, got.Equal(self))
}

func TestKillNearestNeverEmpty(t *testing.T) {
	self := addr(1)
	l := Of(self)

	killed := l.KillNearest(self)
	require.Equal(t, 1, killed.Len())
	head, ok := killed.Head()
	require.True(t, ok)
	assert.True(t, head.Equal(self))
}

func TestKillNearestDropsOnlyNearest(t *testing.T) {
	self := addr(1)
	b := addr(2)
	c := addr(3)
	l := Of(self, b, c)

	killed := l.KillNearest(self)
	assert.Equal(t, 2, killed.Len())
	assert.True(t, killed.Contains(self))
	assert.True(t, killed.Contains(c))
	assert.False(t, killed.Contains(b))
}

func TestAppendDeduplicates(t *testing.T) {
	b := addr(2)
	l := Of(b).Append(b)
	assert.Equal(t, 1, l.Len())
}

func TestTruncate(t *testing.T) {
	l := Of(addr(1), addr(2), addr(3), addr(4))
	truncated := l.Truncate(2)
	assert.Equal(t, 2, truncated.Len())
}
