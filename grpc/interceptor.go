package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Session is what the interceptors need from a client session.
// *client.Session implements it.
type Session interface {
	AccessToken(ctx context.Context) (string, error)
	Signal(reason string)
	RecoverUnauthorized(ctx context.Context, code, message string, retried bool) bool
}

// UnaryClientInterceptor returns a gRPC unary client interceptor that
// authenticates calls with the session's access token. An Unauthenticated
// error is handed to the session's recovery policy; when that renews the
// tokens the call is sent once more. PermissionDenied and every other error
// are returned unchanged.
func UnaryClientInterceptor(sess Session, config *Config) grpc.UnaryClientInterceptor {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		public := config.PublicMethods[method]

		invoke := func(retried bool) (metadata.MD, error) {
			callCtx, hasToken := authorize(ctx, sess, config)
			if hasToken && !public && !retried {
				sess.Signal("grpc:" + method)
			}
			var trailer metadata.MD
			err := invoker(callCtx, method, req, reply, cc, append(opts, grpc.Trailer(&trailer))...)
			return trailer, err
		}

		trailer, err := invoke(false)
		if public || status.Code(err) != codes.Unauthenticated {
			return err
		}

		code := ErrorCodeFromTrailer(trailer, config.MetadataKeyErrorCode)
		if !sess.RecoverUnauthorized(ctx, code, backendMessage(err, code), false) {
			return err
		}

		trailer, err = invoke(true)
		if status.Code(err) == codes.Unauthenticated {
			code = ErrorCodeFromTrailer(trailer, config.MetadataKeyErrorCode)
			sess.RecoverUnauthorized(ctx, code, backendMessage(err, code), true)
		}
		return err
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that
// authenticates streams with the session's access token. Streams cannot be
// replayed, so no recovery is attempted.
func StreamClientInterceptor(sess Session, config *Config) grpc.StreamClientInterceptor {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		callCtx, hasToken := authorize(ctx, sess, config)
		if hasToken && !config.PublicMethods[method] {
			sess.Signal("grpc:" + method)
		}
		return streamer(callCtx, desc, cc, method, opts...)
	}
}

// authorize attaches the current access token, if any.
func authorize(ctx context.Context, sess Session, config *Config) (context.Context, bool) {
	token, err := sess.AccessToken(ctx)
	if err != nil || token == "" {
		return ctx, false
	}
	return BearerToOutgoingContextWithKey(ctx, token, config.MetadataKeyAuthorization), true
}

// backendMessage returns the status message unless it merely repeats the code.
func backendMessage(err error, code string) string {
	msg := status.Convert(err).Message()
	if msg == code {
		return ""
	}
	return msg
}
