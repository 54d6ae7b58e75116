package nodefinder

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
)

func withID(n int64) peer.Address {
	return peer.New(ringid.New(big.NewInt(n)), "127.0.0.1", 9000+int(n))
}

func TestJudgeAloneOwnsSelf(t *testing.T) {
	self := withID(5)

	var called string
	Judge(ringid.New(big.NewInt(9)), self, self, Callbacks{
		OnSelfOwns:      func() { called = "self" },
		OnSuccessorOwns: func() { called = "succ" },
		OnForward:       func() { called = "forward" },
	})

	assert.Equal(t, "self", called)
}

func TestJudgeSuccessorOwns(t *testing.T) {
	self := withID(3)
	succ := withID(7)

	var called string
	Judge(ringid.New(big.NewInt(5)), self, succ, Callbacks{
		OnSelfOwns:      func() { called = "self" },
		OnSuccessorOwns: func() { called = "succ" },
		OnForward:       func() { called = "forward" },
	})

	assert.Equal(t, "succ", called)
}

func TestJudgeForwardsWhenOutOfRange(t *testing.T) {
	self := withID(3)
	succ := withID(7)

	var called string
	Judge(ringid.New(big.NewInt(20)), self, succ, Callbacks{
		OnSelfOwns:      func() { called = "self" },
		OnSuccessorOwns: func() { called = "succ" },
		OnForward:       func() { called = "forward" },
	})

	assert.Equal(t, "forward", called)
}

func TestClosestPrecedingPicksFurthestWithoutOvershoot(t *testing.T) {
	self := withID(0)
	target := ringid.New(big.NewInt(100))
	near := withID(10)
	far := withID(50)
	overshoot := withID(150)

	got := ClosestPreceding(target, self, []peer.Address{near, far, overshoot})
	assert.True(t, got.Equal(far))
}
