package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mcncl/request-id/internal/logging"
	"github.com/mcncl/request-id/pkg/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Metrics variables - these will be initialized by InitMetrics
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	RequestIDMissing  prometheus.Counter
	RateLimitExceeded *prometheus.CounterVec
)

// InitMetrics initializes metrics with a specific registry
func InitMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		return fmt.Errorf("registry cannot be nil")
	}

	factory := promauto.With(reg)

	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_id_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "status"},
	)

	RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_id_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RequestIDMissing = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "request_id_missing_total",
			Help: "Requests that reached the handler chain without a request ID",
		},
	)

	RateLimitExceeded = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "request_id_rate_limit_exceeded_total",
			Help: "Total number of requests that exceeded rate limits",
		},
		[]string{"type"},
	)

	return nil
}

// RecordRequest records a served request. No-op before InitMetrics.
func RecordRequest(method string, status int, duration time.Duration) {
	if RequestsTotal == nil || RequestDuration == nil {
		return
	}
	RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordMissingID counts a request without an ID in its context.
func RecordMissingID() {
	if RequestIDMissing == nil {
		return
	}
	RequestIDMissing.Inc()
}

// RecordRateLimitExceeded counts a rejected request by limiter type.
func RecordRateLimitExceeded(limiterType string) {
	if RateLimitExceeded == nil {
		return
	}
	RateLimitExceeded.WithLabelValues(limiterType).Inc()
}

// WithMetrics records request counts and durations. Requests whose span
// carries the unknown id are also counted as missing an ID.
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		if requestid.MakeSpan(r).ID == requestid.Unknown {
			RecordMissingID()
		}

		lrw := logging.NewLogResponseWriter(w)
		next.ServeHTTP(lrw, r)

		RecordRequest(r.Method, lrw.StatusCode(), time.Since(start))
	})
}
