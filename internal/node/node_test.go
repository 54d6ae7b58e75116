package node

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ringkeeper/chordkeep/internal/chordstate"
	"github.com/ringkeeper/chordkeep/internal/nodelist"
	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
	"github.com/ringkeeper/chordkeep/internal/stabilizer"
	"github.com/ringkeeper/chordkeep/internal/transmitter"
)

type fakeTransmitter struct {
	findNodeResult *peer.Address
	findNodeErr    error
}

func (f *fakeTransmitter) CheckLiving(ctx context.Context) (bool, error) { return true, nil }
func (f *fakeTransmitter) YourPredecessor(ctx context.Context) (*peer.Address, error) {
	return nil, nil
}
func (f *fakeTransmitter) YourSuccessor(ctx context.Context) (*peer.Address, error) {
	return nil, nil
}
func (f *fakeTransmitter) AmIPredecessor(ctx context.Context, self peer.Address) error { return nil }
func (f *fakeTransmitter) FindNode(ctx context.Context, target ringid.ID) (*peer.Address, error) {
	return f.findNodeResult, f.findNodeErr
}
func (f *fakeTransmitter) SetChunk(ctx context.Context, key, value []byte) error { return nil }
func (f *fakeTransmitter) GetSuccessorList(ctx context.Context) ([]peer.Address, error) {
	return nil, nil
}

type fakeDialer struct {
	byDial map[string]*fakeTransmitter
}

func newFakeDialer() *fakeDialer { return &fakeDialer{byDial: make(map[string]*fakeTransmitter)} }

func (d *fakeDialer) Dial(p peer.Address) transmitter.Transmitter {
	if t, ok := d.byDial[p.Dial()]; ok {
		return t
	}
	return &fakeTransmitter{}
}

type noopWatcher struct{}

func (noopWatcher) Watch(p peer.Address)   {}
func (noopWatcher) Unwatch(p peer.Address) {}

func idAddr(n int64) peer.Address {
	return peer.New(ringid.New(big.NewInt(n)), "127.0.0.1", 9000+int(n))
}

func TestFindNodeSelfOwnsWhenAlone(t *testing.T) {
	self := idAddr(1)
	cell := chordstate.NewCell(chordstate.New(self, nil, nil))
	n := New(cell, newFakeDialer(), noopWatcher{}, stabilizer.DefaultTimeouts(), time.Second, zerolog.Nop())

	got, err := n.FindNode(context.Background(), self.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(self))
}

func TestFindNodeSuccessorOwnsInRange(t *testing.T) {
	self := idAddr(1)
	succ := idAddr(9)
	target := idAddr(5)

	cell := chordstate.NewCell(chordstate.New(self, nil, nil))
	cell.Store(chordstate.State{Self: self, SuccList: nodelist.Of(succ), FingerList: nodelist.Of(self)})

	n := New(cell, newFakeDialer(), noopWatcher{}, stabilizer.DefaultTimeouts(), time.Second, zerolog.Nop())

	got, err := n.FindNode(context.Background(), target.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(succ))
}

func TestFindNodeForwardsToClosestPreceding(t *testing.T) {
	self := idAddr(1)
	succ := idAddr(3)
	finger := idAddr(50)
	target := idAddr(90)
	resolved := idAddr(95)

	dialer := newFakeDialer()
	dialer.byDial[finger.Dial()] = &fakeTransmitter{findNodeResult: &resolved}

	cell := chordstate.NewCell(chordstate.State{
		Self:       self,
		SuccList:   nodelist.Of(succ),
		FingerList: nodelist.Of(finger),
	})

	n := New(cell, dialer, noopWatcher{}, stabilizer.DefaultTimeouts(), time.Second, zerolog.Nop())

	got, err := n.FindNode(context.Background(), target.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Equal(resolved))
}

func TestAmIPredecessorAcceptsCloserCandidate(t *testing.T) {
	self := idAddr(10)
	far := idAddr(1)
	closer := idAddr(8)

	cell := chordstate.NewCell(chordstate.State{Self: self, Pred: &far, SuccList: nodelist.Of(self), FingerList: nodelist.Of(self)})
	n := New(cell, newFakeDialer(), noopWatcher{}, stabilizer.DefaultTimeouts(), time.Second, zerolog.Nop())

	require.NoError(t, n.AmIPredecessor(context.Background(), closer))

	got := n.State()
	require.NotNil(t, got.Pred)
	assert.True(t, got.Pred.Equal(closer))
}

func TestAmIPredecessorRejectsFartherCandidate(t *testing.T) {
	self := idAddr(10)
	close1 := idAddr(8)
	farther := idAddr(1)

	cell := chordstate.NewCell(chordstate.State{Self: self, Pred: &close1, SuccList: nodelist.Of(self), FingerList: nodelist.Of(self)})
	n := New(cell, newFakeDialer(), noopWatcher{}, stabilizer.DefaultTimeouts(), time.Second, zerolog.Nop())

	require.NoError(t, n.AmIPredecessor(context.Background(), farther))

	got := n.State()
	require.NotNil(t, got.Pred)
	assert.True(t, got.Pred.Equal(close1))
}

func TestSetChunkAndGetSuccessorList(t *testing.T) {
	self := idAddr(1)
	succ := idAddr(2)

	holder := newMemoryStub()
	cell := chordstate.NewCell(chordstate.State{
		Self: self, SuccList: nodelist.Of(succ), FingerList: nodelist.Of(self), DataHolder: holder,
	})
	n := New(cell, newFakeDialer(), noopWatcher{}, stabilizer.DefaultTimeouts(), time.Second, zerolog.Nop())

	require.NoError(t, n.SetChunk(context.Background(), []byte("k"), []byte("v")))
	v, ok, err := holder.Get(context.Background(), []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	list, err := n.GetSuccessorList(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Equal(succ))
}

type memoryStub struct{ data map[string][]byte }

func newMemoryStub() *memoryStub { return &memoryStub{data: make(map[string][]byte)} }

func (m *memoryStub) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	v, ok := m.data[string(key)]
	return v, ok, nil
}
func (m *memoryStub) Set(ctx context.Context, key, value []byte) error {
	m.data[string(key)] = value
	return nil
}
func (m *memoryStub) Delete(ctx context.Context, key []byte) error {
	delete(m.data, string(key))
	return nil
}
func (m *memoryStub) Keys(ctx context.Context) ([][]byte, error) {
	out := make([][]byte, 0, len(m.data))
	for k := range m.data {
		out = append(out, []byte(k))
	}
	return out, nil
}
func (m *memoryStub) GetKeysInRange(ctx context.Context, start, end ringid.ID) ([][]byte, error) {
	var out [][]byte
	for k := range m.data {
		if ringid.InRange(ringid.HashBytes([]byte(k)), start, end) {
			out = append(out, []byte(k))
		}
	}
	return out, nil
}
func (m *memoryStub) DeleteKeysInRange(ctx context.Context, start, end ringid.ID) (int, error) {
	keys, err := m.GetKeysInRange(ctx, start, end)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		delete(m.data, string(k))
	}
	return len(keys), nil
}
