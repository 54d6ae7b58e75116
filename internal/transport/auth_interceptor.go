package transport

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// AuthTokenHeader is the metadata key carrying the shared join token.
const AuthTokenHeader = "x-auth-token"

// AuthInterceptor gates every RPC behind a shared token. An empty
// expectedToken disables the check entirely, which is the default: the
// overlay has no cryptographic peer authentication by design, only this
// optional non-cryptographic gate.
func AuthInterceptor(expectedToken string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if expectedToken == "" {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		tokens := md.Get(AuthTokenHeader)
		if len(tokens) == 0 || tokens[0] != expectedToken {
			return nil, status.Error(codes.Unauthenticated, "invalid or missing auth token")
		}

		return handler(ctx, req)
	}
}
