package requestid

import (
	"context"

	"google.golang.org/grpc"
)

// UnaryServerInterceptor stamps each unary call's context with a fresh ID.
// The handler's response and error are returned unchanged.
func UnaryServerInterceptor(opts ...Option) grpc.UnaryServerInterceptor {
	o := newOptions(opts)

	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		return handler(NewContext(ctx, o.generator.Generate()), req)
	}
}

// StreamServerInterceptor stamps each stream's context with a fresh ID.
func StreamServerInterceptor(opts ...Option) grpc.StreamServerInterceptor {
	o := newOptions(opts)

	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		return handler(srv, &stampedServerStream{
			ServerStream: ss,
			ctx:          NewContext(ss.Context(), o.generator.Generate()),
		})
	}
}

// stampedServerStream overrides the stream context
type stampedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *stampedServerStream) Context() context.Context {
	return s.ctx
}
