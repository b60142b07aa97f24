package requestid

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRequestID(t *testing.T) {
	var (
		got ID
		ok  bool
	)
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = FromContext(r.Context())
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/test?x=1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.True(t, ok, "request id not found in context")
	assert.Len(t, got.String(), EncodedSize)

	// response is exactly what the inner handler produced
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "short and stout", w.Body.String())
	assert.Equal(t, http.Header{"Content-Type": {"text/plain"}}, w.Header())
}

func TestMiddlewareIgnoresClientHeader(t *testing.T) {
	var got string
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = StringFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(DefaultHeader, "client-supplied")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.NotEqual(t, "client-supplied", got)
	_, err := Parse(got)
	assert.NoError(t, err)
}

func TestMiddlewareResponseHeader(t *testing.T) {
	tests := []struct {
		name       string
		opts       []Option
		wantHeader string
	}{
		{
			name: "no header by default",
		},
		{
			name:       "echoes default header",
			opts:       []Option{WithResponseHeader(DefaultHeader)},
			wantHeader: DefaultHeader,
		},
		{
			name:       "echoes custom header",
			opts:       []Option{WithResponseHeader("X-Correlation-ID")},
			wantHeader: "X-Correlation-ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inContext string
			handler := Middleware(tt.opts...)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				inContext = StringFromContext(r.Context())
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			if tt.wantHeader == "" {
				assert.Empty(t, w.Header())
				return
			}
			assert.Equal(t, inContext, w.Header().Get(tt.wantHeader))
		})
	}
}

func TestMiddlewareConcurrentRequests(t *testing.T) {
	const n = 50

	var (
		mu  sync.Mutex
		ids = make(map[string]struct{}, n)
	)
	handler := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids[StringFromContext(r.Context())] = struct{}{}
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		}()
	}
	wg.Wait()

	assert.Len(t, ids, n)
	assert.NotContains(t, ids, Unknown)
}
