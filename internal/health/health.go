package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/mcncl/request-id/pkg/requestid"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ErrNotReady is returned by Ready until SetReady(true) is called.
var ErrNotReady = errors.New("service not ready")

type HealthCheck struct {
	isReady *atomic.Bool

	mu   sync.Mutex
	grpc *grpchealth.Server
}

func NewHealthCheck() *HealthCheck {
	ready := &atomic.Bool{}
	ready.Store(false)
	return &HealthCheck{
		isReady: ready,
	}
}

// BindGRPC mirrors readiness onto the overall status of a gRPC health server.
func (h *HealthCheck) BindGRPC(srv *grpchealth.Server) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.grpc = srv
	h.syncGRPC()
}

func (h *HealthCheck) syncGRPC() {
	if h.grpc == nil {
		return
	}
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if h.isReady.Load() {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.grpc.SetServingStatus("", status)
}

// Ready reports readiness in the shape requestid.Service expects.
func (h *HealthCheck) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !h.isReady.Load() {
		return ErrNotReady
	}
	return nil
}

func (h *HealthCheck) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, r, http.StatusOK, "healthy")
}

func (h *HealthCheck) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Ready(r.Context()); err != nil {
		writeStatus(w, r, http.StatusServiceUnavailable, "not_ready")
		return
	}
	writeStatus(w, r, http.StatusOK, "ready")
}

// SetReady marks the service as ready to receive traffic
func (h *HealthCheck) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.isReady.Store(ready)
	h.syncGRPC()
}

func writeStatus(w http.ResponseWriter, r *http.Request, code int, status string) {
	response := map[string]string{
		"status": status,
	}
	if id, ok := requestid.FromContext(r.Context()); ok {
		response["request_id"] = id.String()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(response)
}
