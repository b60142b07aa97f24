package logging

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/mcncl/request-id/internal/logging"
	"github.com/mcncl/request-id/pkg/requestid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// WithStructuredLogging adds structured logging to the request/response cycle.
//
// Every entry carries the request span (id, method, uri), and the derived
// logger is placed in the request context for handlers. Install it inside
// requestid.WithRequestID or the id will read "unknown".
func WithStructuredLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			span := requestid.MakeSpan(r)
			reqLogger := logger.With(span.Attr())

			lrw := logging.NewLogResponseWriter(w)

			reqLogger.Info("Request started",
				"remote_addr", r.RemoteAddr,
			)

			next.ServeHTTP(lrw, r.WithContext(logging.NewContext(r.Context(), reqLogger)))

			reqLogger.Info("Request completed",
				"status", lrw.StatusCode(),
				"duration_ms", time.Since(start).Milliseconds(),
				"size", lrw.Size(),
			)
		})
	}
}

// UnaryServerInterceptor is the gRPC counterpart of WithStructuredLogging.
// Chain it after requestid.UnaryServerInterceptor.
func UnaryServerInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		span := requestid.MakeGRPCSpan(ctx, info.FullMethod)
		reqLogger := logger.With(span.Attr())

		resp, err := handler(logging.NewContext(ctx, reqLogger), req)

		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		reqLogger.Log(ctx, level, "Call completed",
			"code", status.Code(err).String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)

		return resp, err
	}
}

// StreamServerInterceptor logs one line per stream once its handler returns.
// Chain it after requestid.StreamServerInterceptor.
func StreamServerInterceptor(logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()

		ctx := ss.Context()
		span := requestid.MakeGRPCSpan(ctx, info.FullMethod)
		reqLogger := logger.With(span.Attr())

		err := handler(srv, &loggedServerStream{
			ServerStream: ss,
			ctx:          logging.NewContext(ctx, reqLogger),
		})

		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		reqLogger.Log(ctx, level, "Stream completed",
			"code", status.Code(err).String(),
			"client_stream", info.IsClientStream,
			"server_stream", info.IsServerStream,
			"duration_ms", time.Since(start).Milliseconds(),
		)

		return err
	}
}

type loggedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggedServerStream) Context() context.Context {
	return s.ctx
}
