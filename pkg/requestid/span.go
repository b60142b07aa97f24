package requestid

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SpanName is the name given to request spans.
const SpanName = "request"

// Span describes a request for logging and tracing: the request ID (or
// Unknown), the method and the request target.
type Span struct {
	ID     string
	Method string
	URI    string
}

// MakeSpan builds the Span for r. It reads r's context and never modifies
// the request.
func MakeSpan(r *http.Request) Span {
	uri := r.RequestURI
	if uri == "" && r.URL != nil {
		uri = r.URL.RequestURI()
	}

	return Span{
		ID:     StringFromContext(r.Context()),
		Method: r.Method,
		URI:    uri,
	}
}

// MakeGRPCSpan builds the Span for a gRPC call. gRPC always travels as an
// HTTP/2 POST to the full method path.
func MakeGRPCSpan(ctx context.Context, fullMethod string) Span {
	return Span{
		ID:     StringFromContext(ctx),
		Method: http.MethodPost,
		URI:    fullMethod,
	}
}

// LogValue implements slog.LogValuer.
func (s Span) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", s.ID),
		slog.String("method", s.Method),
		slog.String("uri", s.URI),
	)
}

// Attr returns the span as a slog group named SpanName.
func (s Span) Attr() slog.Attr {
	return slog.Any(SpanName, s)
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s Span) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("id", s.ID)
	enc.AddString("method", s.Method)
	enc.AddString("uri", s.URI)
	return nil
}

// Field returns the span as a zap object field named SpanName.
func (s Span) Field() zap.Field {
	return zap.Object(SpanName, s)
}

// Attributes returns the span fields as OpenTelemetry attributes.
func (s Span) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("id", s.ID),
		attribute.String("method", s.Method),
		attribute.String("uri", s.URI),
	}
}
