package transport

import (
	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
)

// The request/response pairs below are the plain-Go equivalent of what a
// .proto file would otherwise generate. Every field is exported so the
// jsonCodec can marshal it directly.

type emptyMessage struct{}

type livingResponse struct {
	Alive bool `json:"alive"`
}

// addressResponse carries an optional address: Present is false when the
// peer explicitly reports it has none (no predecessor, no successor).
type addressResponse struct {
	Present bool         `json:"present"`
	Address peer.Address `json:"address"`
}

type amIPredecessorRequest struct {
	Self peer.Address `json:"self"`
}

type findNodeRequest struct {
	Target ringid.ID `json:"target"`
}

type setChunkRequest struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

type successorListResponse struct {
	Addresses []peer.Address `json:"addresses"`
}
