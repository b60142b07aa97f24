package requestid

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMakeSpan(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		id     string
		want   Span
	}{
		{
			name:   "no id in context",
			method: http.MethodGet,
			target: "/health",
			want:   Span{ID: Unknown, Method: http.MethodGet, URI: "/health"},
		},
		{
			name:   "annotated request",
			method: http.MethodPost,
			target: "/users?page=2&sort=name",
			id:     "01FGR4DNBYJ0M7ZV6XS3JHXDD1",
			want:   Span{ID: "01FGR4DNBYJ0M7ZV6XS3JHXDD1", Method: http.MethodPost, URI: "/users?page=2&sort=name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.id != "" {
				req = req.WithContext(NewContext(req.Context(), MustParse(tt.id)))
			}

			assert.Equal(t, tt.want, MakeSpan(req))
			// pure: calling again gives the same answer
			assert.Equal(t, tt.want, MakeSpan(req))
		})
	}
}

func TestMakeSpanClientRequest(t *testing.T) {
	req, err := http.NewRequest(http.MethodDelete, "http://example.com/items/7?force=true", nil)
	require.NoError(t, err)

	span := MakeSpan(req)
	assert.Equal(t, "/items/7?force=true", span.URI)
	assert.Equal(t, Unknown, span.ID)
}

func TestMakeSpanAfterMiddleware(t *testing.T) {
	var span Span
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span = MakeSpan(r)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPut, "/a/b?c=d", nil))

	assert.NotEqual(t, Unknown, span.ID)
	assert.Len(t, span.ID, EncodedSize)
	assert.Equal(t, http.MethodPut, span.Method)
	assert.Equal(t, "/a/b?c=d", span.URI)
}

func TestMakeSpanBeforeMiddlewareIsUnknown(t *testing.T) {
	var span Span
	outer := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			span = MakeSpan(r)
			next.ServeHTTP(w, r)
		})
	}

	handler := outer(WithRequestID(http.NotFoundHandler()))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, Unknown, span.ID)
}

func TestMakeGRPCSpan(t *testing.T) {
	ctx := NewContext(context.Background(), MustParse("01FGR4DNBYJ0M7ZV6XS3JHXDD1"))

	span := MakeGRPCSpan(ctx, "/grpc.health.v1.Health/Check")
	assert.Equal(t, Span{
		ID:     "01FGR4DNBYJ0M7ZV6XS3JHXDD1",
		Method: http.MethodPost,
		URI:    "/grpc.health.v1.Health/Check",
	}, span)

	assert.Equal(t, Unknown, MakeGRPCSpan(context.Background(), "/x/Y").ID)
}

func TestSpanSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	span := Span{ID: "01FGR4DNBYJ0M7ZV6XS3JHXDD1", Method: "GET", URI: "/?q=1"}
	logger.Info("hi", span.Attr())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, map[string]interface{}{
		"id":     "01FGR4DNBYJ0M7ZV6XS3JHXDD1",
		"method": "GET",
		"uri":    "/?q=1",
	}, entry[SpanName])
}

func TestSpanZap(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	span := Span{ID: Unknown, Method: "GET", URI: "/"}
	logger.Info("hi", span.Field())

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, map[string]interface{}{
		"id":     Unknown,
		"method": "GET",
		"uri":    "/",
	}, fields[SpanName])
}

func TestSpanAttributes(t *testing.T) {
	span := Span{ID: "01FGR4DNBYJ0M7ZV6XS3JHXDD1", Method: "GET", URI: "/"}

	assert.Equal(t, []attribute.KeyValue{
		attribute.String("id", "01FGR4DNBYJ0M7ZV6XS3JHXDD1"),
		attribute.String("method", "GET"),
		attribute.String("uri", "/"),
	}, span.Attributes())
}

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, ok := FromContext(ctx)
	assert.False(t, ok)
	assert.Equal(t, Unknown, StringFromContext(ctx))

	first := MustParse("01FGR4DNBYJ0M7ZV6XS3JHXDD1")
	second := New()
	ctx = NewContext(NewContext(ctx, first), second)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, second, got)

	// a plain string key with the same name does not collide
	ctx = context.WithValue(context.Background(), "request_id", "plain")
	_, ok = FromContext(ctx)
	assert.False(t, ok)
}
