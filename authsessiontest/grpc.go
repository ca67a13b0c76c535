package authsessiontest

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Metadata keys understood by the server interceptor.
const (
	MetadataKeyAuthorization = "authorization"
	MetadataKeyErrorCode     = "x-auth-error-code"
)

// UnaryServerInterceptor verifies the bearer token of every call except the
// public methods. Rejections are Unauthenticated with the backend error code
// in the x-auth-error-code trailer. Methods in denied fail with
// PermissionDenied once authenticated.
func (b *Backend) UnaryServerInterceptor(public, denied map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if public[info.FullMethod] {
			return handler(ctx, req)
		}
		b.protectedCalls.Add(1)

		if f := b.forcedFailure(); f != nil {
			grpc.SetTrailer(ctx, metadata.Pairs(MetadataKeyErrorCode, f.code))
			return nil, status.Error(codes.Unauthenticated, f.message)
		}

		var token string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if values := md.Get(MetadataKeyAuthorization); len(values) > 0 {
				token, _ = strings.CutPrefix(values[0], "Bearer ")
			}
		}

		_, code, err := b.VerifyAccessToken(strings.TrimSpace(token))
		if err != nil {
			grpc.SetTrailer(ctx, metadata.Pairs(MetadataKeyErrorCode, string(code)))
			return nil, status.Error(codes.Unauthenticated, string(code))
		}

		if denied[info.FullMethod] {
			return nil, status.Error(codes.PermissionDenied, "forbidden")
		}
		return handler(ctx, req)
	}
}
