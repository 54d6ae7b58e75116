package transport

import (
	"context"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/ringkeeper/chordkeep/internal/peer"
	"github.com/ringkeeper/chordkeep/internal/ringid"
)

// ChordServiceServer is implemented by whatever owns the local node's
// ChordState and answers RPCs on its behalf. The stabilizer never
// implements this directly; node.Node is the adapter that wires the
// chordstate.Cell and nodefinder.Judge into these handlers.
type ChordServiceServer interface {
	CheckLiving(ctx context.Context) (bool, error)
	YourPredecessor(ctx context.Context) (*peer.Address, error)
	YourSuccessor(ctx context.Context) (*peer.Address, error)
	AmIPredecessor(ctx context.Context, self peer.Address) error
	FindNode(ctx context.Context, target ringid.ID) (*peer.Address, error)
	SetChunk(ctx context.Context, key, value []byte) error
	GetSuccessorList(ctx context.Context) ([]peer.Address, error)
}

// serviceDesc is the hand-authored equivalent of what protoc-gen-go-grpc
// would emit from a .proto file: one entry per RPC, each pointing at a
// handler that decodes the request with the registered jsonCodec,
// delegates to ChordServiceServer, and encodes the response.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "chordkeep.ChordService",
	HandlerType: (*ChordServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CheckLiving", Handler: checkLivingHandler},
		{MethodName: "YourPredecessor", Handler: yourPredecessorHandler},
		{MethodName: "YourSuccessor", Handler: yourSuccessorHandler},
		{MethodName: "AmIPredecessor", Handler: amIPredecessorHandler},
		{MethodName: "FindNode", Handler: findNodeHandler},
		{MethodName: "SetChunk", Handler: setChunkHandler},
		{MethodName: "GetSuccessorList", Handler: getSuccessorListHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chordkeep/transport.proto",
}

func checkLivingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(emptyMessage)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return callCheckLiving(srv, ctx)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/chordkeep.ChordService/CheckLiving"}
	return interceptor(ctx, req, info, func(ctx context.Context, _ any) (any, error) {
		return callCheckLiving(srv, ctx)
	})
}

func callCheckLiving(srv any, ctx context.Context) (any, error) {
	alive, err := srv.(ChordServiceServer).CheckLiving(ctx)
	if err != nil {
		return nil, err
	}
	return &livingResponse{Alive: alive}, nil
}

func yourPredecessorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(emptyMessage)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return callYourPredecessor(srv, ctx)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/chordkeep.ChordService/YourPredecessor"}
	return interceptor(ctx, req, info, func(ctx context.Context, _ any) (any, error) {
		return callYourPredecessor(srv, ctx)
	})
}

func callYourPredecessor(srv any, ctx context.Context) (any, error) {
	p, err := srv.(ChordServiceServer).YourPredecessor(ctx)
	if err != nil {
		return nil, err
	}
	return addressResponseOf(p), nil
}

func yourSuccessorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(emptyMessage)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return callYourSuccessor(srv, ctx)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/chordkeep.ChordService/YourSuccessor"}
	return interceptor(ctx, req, info, func(ctx context.Context, _ any) (any, error) {
		return callYourSuccessor(srv, ctx)
	})
}

func callYourSuccessor(srv any, ctx context.Context) (any, error) {
	p, err := srv.(ChordServiceServer).YourSuccessor(ctx)
	if err != nil {
		return nil, err
	}
	return addressResponseOf(p), nil
}

func amIPredecessorHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(amIPredecessorRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return callAmIPredecessor(srv, ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/chordkeep.ChordService/AmIPredecessor"}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return callAmIPredecessor(srv, ctx, r.(*amIPredecessorRequest))
	})
}

func callAmIPredecessor(srv any, ctx context.Context, req *amIPredecessorRequest) (any, error) {
	if err := srv.(ChordServiceServer).AmIPredecessor(ctx, req.Self); err != nil {
		return nil, err
	}
	return &emptyMessage{}, nil
}

func findNodeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(findNodeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return callFindNode(srv, ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/chordkeep.ChordService/FindNode"}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return callFindNode(srv, ctx, r.(*findNodeRequest))
	})
}

func callFindNode(srv any, ctx context.Context, req *findNodeRequest) (any, error) {
	p, err := srv.(ChordServiceServer).FindNode(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	return addressResponseOf(p), nil
}

func setChunkHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(setChunkRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return callSetChunk(srv, ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/chordkeep.ChordService/SetChunk"}
	return interceptor(ctx, req, info, func(ctx context.Context, r any) (any, error) {
		return callSetChunk(srv, ctx, r.(*setChunkRequest))
	})
}

func callSetChunk(srv any, ctx context.Context, req *setChunkRequest) (any, error) {
	if err := srv.(ChordServiceServer).SetChunk(ctx, req.Key, req.Value); err != nil {
		return nil, err
	}
	return &emptyMessage{}, nil
}

func getSuccessorListHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(emptyMessage)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return callGetSuccessorList(srv, ctx)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/chordkeep.ChordService/GetSuccessorList"}
	return interceptor(ctx, req, info, func(ctx context.Context, _ any) (any, error) {
		return callGetSuccessorList(srv, ctx)
	})
}

func callGetSuccessorList(srv any, ctx context.Context) (any, error) {
	list, err := srv.(ChordServiceServer).GetSuccessorList(ctx)
	if err != nil {
		return nil, err
	}
	return &successorListResponse{Addresses: list}, nil
}

func addressResponseOf(p *peer.Address) *addressResponse {
	if p == nil {
		return &addressResponse{Present: false}
	}
	return &addressResponse{Present: true, Address: *p}
}

// Server wraps a grpc.Server bound to the hand-registered serviceDesc.
type Server struct {
	grpcServer *grpc.Server
	listener   net.Listener
	logger     zerolog.Logger
}

// NewServer builds a Server that will answer ChordService RPCs against
// impl once Start is called. unaryInterceptors are chained in order, the
// same convention the teacher's auth interceptor follows.
func NewServer(impl ChordServiceServer, addr string, logger zerolog.Logger, unaryInterceptors ...grpc.UnaryServerInterceptor) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	opts := []grpc.ServerOption{}
	if len(unaryInterceptors) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(unaryInterceptors...))
	}

	gs := grpc.NewServer(opts...)
	gs.RegisterService(&serviceDesc, impl)

	return &Server{grpcServer: gs, listener: lis, logger: logger.With().Str("component", "transport-server").Logger()}, nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// Start serves until Stop is called. Intended to be run in its own
// goroutine by the caller.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("chord RPC server listening")
	return s.grpcServer.Serve(s.listener)
}

// Stop gracefully stops the gRPC server.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}
