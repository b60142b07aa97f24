package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mcncl/request-id/pkg/requestid"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name         string
		path         string
		setReady     bool
		wantStatus   int
		wantResponse map[string]string
	}{
		{
			name:       "health check returns healthy",
			path:       "/health",
			setReady:   false, // health should return ok regardless of ready state
			wantStatus: http.StatusOK,
			wantResponse: map[string]string{
				"status": "healthy",
			},
		},
		{
			name:       "readiness check when ready",
			path:       "/ready",
			setReady:   true,
			wantStatus: http.StatusOK,
			wantResponse: map[string]string{
				"status": "ready",
			},
		},
		{
			name:       "readiness check when not ready",
			path:       "/ready",
			setReady:   false,
			wantStatus: http.StatusServiceUnavailable,
			wantResponse: map[string]string{
				"status": "not_ready",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := NewHealthCheck()
			hc.SetReady(tt.setReady)

			mux := http.NewServeMux()
			mux.HandleFunc("/health", hc.HealthHandler)
			mux.HandleFunc("/ready", hc.ReadyHandler)

			var seenID string
			handler := requestid.WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seenID = requestid.StringFromContext(r.Context())
				mux.ServeHTTP(w, r)
			}))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", w.Code, tt.wantStatus)
			}

			var got map[string]string
			if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if got["status"] != tt.wantResponse["status"] {
				t.Errorf("got response %v, want %v", got, tt.wantResponse)
			}
			if got["request_id"] != seenID {
				t.Errorf("request_id = %q, want %q", got["request_id"], seenID)
			}
		})
	}
}

func TestHandlerWithoutRequestID(t *testing.T) {
	hc := NewHealthCheck()
	w := httptest.NewRecorder()
	hc.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	var got map[string]string
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if _, ok := got["request_id"]; ok {
		t.Errorf("request_id should be omitted without a stamped context, got %v", got)
	}
}

func TestReady(t *testing.T) {
	hc := NewHealthCheck()

	if err := hc.Ready(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Ready() = %v, want ErrNotReady", err)
	}

	hc.SetReady(true)
	if err := hc.Ready(context.Background()); err != nil {
		t.Errorf("Ready() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hc.Ready(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Ready(cancelled) = %v, want context.Canceled", err)
	}
}

func TestReadyGatesService(t *testing.T) {
	hc := NewHealthCheck()
	inner := requestid.ServiceFunc[string, string](func(ctx context.Context, req string) (string, error) {
		return req, nil
	})
	svc := requestid.NewService[string, string](gated{hc: hc, inner: inner})

	if err := svc.Ready(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("svc.Ready() = %v, want ErrNotReady", err)
	}
	hc.SetReady(true)
	if err := svc.Ready(context.Background()); err != nil {
		t.Errorf("svc.Ready() = %v, want nil", err)
	}
}

type gated struct {
	hc    *HealthCheck
	inner requestid.Service[string, string]
}

func (g gated) Ready(ctx context.Context) error { return g.hc.Ready(ctx) }

func (g gated) Call(ctx context.Context, req string) (string, error) { return g.inner.Call(ctx, req) }

func TestBindGRPC(t *testing.T) {
	srv := grpchealth.NewServer()
	hc := NewHealthCheck()
	hc.BindGRPC(srv)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := srv.Check(context.Background(), &healthpb.HealthCheckRequest{})
		if err != nil {
			t.Fatalf("Check() error = %v", err)
		}
		return resp.GetStatus()
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status before ready = %v, want NOT_SERVING", got)
	}

	hc.SetReady(true)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status after ready = %v, want SERVING", got)
	}

	hc.SetReady(false)
	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after unready = %v, want NOT_SERVING", got)
	}
}
