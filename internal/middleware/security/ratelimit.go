package security

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mcncl/request-id/internal/errors"
	"github.com/mcncl/request-id/internal/logging"
	"github.com/mcncl/request-id/internal/metrics"
	"golang.org/x/time/rate"
)

func newLimiter(requestsPerMinute int) *rate.Limiter {
	return rate.NewLimiter(
		rate.Every(time.Minute/time.Duration(requestsPerMinute)),
		requestsPerMinute,
	)
}

// RateLimiter provides global rate limiting
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a new rate limiter with specified requests per minute
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return &RateLimiter{limiter: newLimiter(requestsPerMinute)}
}

// Allow reports whether a request may proceed now.
func (l *RateLimiter) Allow() bool {
	return l.limiter.Allow()
}

// WithRateLimit applies global rate limiting to requests. A non-positive
// limit disables it.
func WithRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return passthrough
	}
	limiter := NewRateLimiter(requestsPerMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				reject(w, r, "global", requestsPerMinute)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cleanupInterval is how often idle per-IP limiters are swept. A limiter
// refills completely within a minute of its last request.
const cleanupInterval = time.Minute

// IPRateLimiter provides per-IP rate limiting
type IPRateLimiter struct {
	ips               sync.Map // map[string]*rate.Limiter
	rateFunc          func() *rate.Limiter
	trustForwardedFor bool
}

// IPRateLimitOption configures an IPRateLimiter.
type IPRateLimitOption func(*IPRateLimiter)

// TrustForwardedFor keys limiters on the first X-Forwarded-For entry. Only
// enable it behind a proxy that overwrites the header; otherwise clients
// choose their own key.
func TrustForwardedFor(trust bool) IPRateLimitOption {
	return func(i *IPRateLimiter) {
		i.trustForwardedFor = trust
	}
}

// NewIPRateLimiter creates a new IP-based rate limiter
func NewIPRateLimiter(requestsPerMinute int, opts ...IPRateLimitOption) *IPRateLimiter {
	i := &IPRateLimiter{
		rateFunc: func() *rate.Limiter {
			return newLimiter(requestsPerMinute)
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// GetLimiter returns the rate limiter for a specific IP
func (i *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	if limiter, ok := i.ips.Load(ip); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := i.ips.LoadOrStore(ip, i.rateFunc())
	return limiter.(*rate.Limiter)
}

// Key returns the limiter key for r.
func (i *IPRateLimiter) Key(r *http.Request) string {
	return clientIP(r, i.trustForwardedFor)
}

// CleanupExpired drops limiters whose bucket has refilled completely; they
// carry no state a fresh limiter would not.
func (i *IPRateLimiter) CleanupExpired() {
	i.ips.Range(func(key, value interface{}) bool {
		limiter := value.(*rate.Limiter)
		if limiter.Tokens() >= float64(limiter.Burst()) {
			i.ips.Delete(key)
		}
		return true
	})
}

// RunCleanup calls CleanupExpired every interval until ctx is done.
func (i *IPRateLimiter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.CleanupExpired()
		}
	}
}

// Len returns the number of tracked IPs.
func (i *IPRateLimiter) Len() int {
	n := 0
	i.ips.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// WithIPRateLimit applies per-IP rate limiting to requests. A non-positive
// limit disables it. Idle limiters are swept until ctx is done.
func WithIPRateLimit(ctx context.Context, requestsPerMinute int, opts ...IPRateLimitOption) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return passthrough
	}
	limiter := NewIPRateLimiter(requestsPerMinute, opts...)
	go limiter.RunCleanup(ctx, cleanupInterval)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.GetLimiter(limiter.Key(r)).Allow() {
				reject(w, r, "ip", requestsPerMinute)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func passthrough(next http.Handler) http.Handler { return next }

func reject(w http.ResponseWriter, r *http.Request, limiterType string, requestsPerMinute int) {
	metrics.RecordRateLimitExceeded(limiterType)
	logging.FromContext(r.Context()).Warn("Rate limit exceeded",
		"limiter", limiterType,
		"remote_addr", r.RemoteAddr,
	)

	err := errors.WithDetails(
		errors.NewRateLimitError("too many requests"),
		map[string]interface{}{
			"limiter":             limiterType,
			"requests_per_minute": requestsPerMinute,
		},
	)
	w.Header().Set("Retry-After", "60")
	errors.WriteHTTP(w, r, http.StatusTooManyRequests, err)
}

// clientIP extracts the client IP from the request. X-Forwarded-For is
// consulted only when trustForwardedFor is set.
func clientIP(r *http.Request, trustForwardedFor bool) string {
	if trustForwardedFor {
		if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
			if i := strings.Index(ip, ","); i > -1 {
				ip = ip[:i]
			}
			return strings.TrimSpace(ip)
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
