package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
	"github.com/ringkeeper/chordkeep/internal/transmitter"
)

// Client is a transmitter.Dialer backed by a pool of gRPC connections, one
// per dialed address, modeled on the teacher's connection-pooling client.
type Client struct {
	mu          sync.Mutex
	connections map[string]*grpc.ClientConn
	logger      zerolog.Logger
	authToken   string
}

// NewClient builds a Client. authToken, if non-empty, is attached to every
// outgoing call as metadata and checked by AuthInterceptor on the server
// side.
func NewClient(logger zerolog.Logger, authToken string) *Client {
	return &Client{
		connections: make(map[string]*grpc.ClientConn),
		logger:      logger.With().Str("component", "transport-client").Logger(),
		authToken:   authToken,
	}
}

// Dial returns a Transmitter bound to p's address, lazily opening (and
// reusing) a pooled connection.
func (c *Client) Dial(p peer.Address) transmitter.Transmitter {
	return &remotePeer{client: c, addr: p}
}

func (c *Client) getConn(addr string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.connections[addr]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	c.connections[addr] = conn
	return conn, nil
}

// Close tears down every pooled connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for addr, conn := range c.connections {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(c.connections, addr)
	}
	return firstErr
}

func (c *Client) withAuth(ctx context.Context) context.Context {
	if c.authToken == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, AuthTokenHeader, c.authToken)
}

// remotePeer implements transmitter.Transmitter against a single dialed
// address.
type remotePeer struct {
	client *Client
	addr   peer.Address
}

func (r *remotePeer) invoke(ctx context.Context, method string, req, reply any) error {
	conn, err := r.client.getConn(r.addr.Dial())
	if err != nil {
		return err
	}
	ctx = r.client.withAuth(ctx)
	fullMethod := fmt.Sprintf("/%s/%s", serviceDesc.ServiceName, method)
	return conn.Invoke(ctx, fullMethod, req, reply, grpc.CallContentSubtype(codecName))
}

func (r *remotePeer) CheckLiving(ctx context.Context) (bool, error) {
	resp := new(livingResponse)
	if err := r.invoke(ctx, "CheckLiving", &emptyMessage{}, resp); err != nil {
		return false, err
	}
	return resp.Alive, nil
}

func (r *remotePeer) YourPredecessor(ctx context.Context) (*peer.Address, error) {
	resp := new(addressResponse)
	if err := r.invoke(ctx, "YourPredecessor", &emptyMessage{}, resp); err != nil {
		return nil, err
	}
	if !resp.Present {
		return nil, nil
	}
	addr := resp.Address
	return &addr, nil
}

func (r *remotePeer) YourSuccessor(ctx context.Context) (*peer.Address, error) {
	resp := new(addressResponse)
	if err := r.invoke(ctx, "YourSuccessor", &emptyMessage{}, resp); err != nil {
		return nil, err
	}
	if !resp.Present {
		return nil, nil
	}
	addr := resp.Address
	return &addr, nil
}

func (r *remotePeer) AmIPredecessor(ctx context.Context, self peer.Address) error {
	return r.invoke(ctx, "AmIPredecessor", &amIPredecessorRequest{Self: self}, &emptyMessage{})
}

func (r *remotePeer) FindNode(ctx context.Context, target ringid.ID) (*peer.Address, error) {
	resp := new(addressResponse)
	if err := r.invoke(ctx, "FindNode", &findNodeRequest{Target: target}, resp); err != nil {
		return nil, err
	}
	if !resp.Present {
		return nil, nil
	}
	addr := resp.Address
	return &addr, nil
}

func (r *remotePeer) SetChunk(ctx context.Context, key, value []byte) error {
	return r.invoke(ctx, "SetChunk", &setChunkRequest{Key: key, Value: value}, &emptyMessage{})
}

func (r *remotePeer) GetSuccessorList(ctx context.Context) ([]peer.Address, error) {
	resp := new(successorListResponse)
	if err := r.invoke(ctx, "GetSuccessorList", &emptyMessage{}, resp); err != nil {
		return nil, err
	}
	return resp.Addresses, nil
}
