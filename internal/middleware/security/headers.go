package security

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mcncl/request-id/pkg/requestid"
)

// SecurityConfig controls which browser origins may call the server and
// which response headers they may read.
type SecurityConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int // in seconds
}

// DefaultConfig allows any origin to read the echo route and its request ID
// header. Credentials are never allowed for the wildcard.
func DefaultConfig() SecurityConfig {
	return SecurityConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization"},
		ExposedHeaders: []string{requestid.DefaultHeader},
		MaxAge:         3600,
	}
}

// Set on every response.
var responseHeaders = [...][2]string{
	{"Cache-Control", "no-store"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Strict-Transport-Security", "max-age=31536000; includeSubDomains"},
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
}

// corsPolicy is a SecurityConfig with its header values rendered once.
type corsPolicy struct {
	origins   map[string]bool
	anyOrigin bool
	methods   string
	headers   string
	exposed   string
	maxAge    string
}

func newCORSPolicy(config SecurityConfig) corsPolicy {
	p := corsPolicy{
		origins: make(map[string]bool, len(config.AllowedOrigins)),
		methods: strings.Join(config.AllowedMethods, ", "),
		headers: strings.Join(config.AllowedHeaders, ", "),
		exposed: strings.Join(config.ExposedHeaders, ", "),
	}
	for _, origin := range config.AllowedOrigins {
		if origin == "*" {
			p.anyOrigin = true
			continue
		}
		p.origins[origin] = true
	}
	if config.MaxAge > 0 {
		p.maxAge = strconv.Itoa(config.MaxAge)
	}
	return p
}

// apply writes the CORS response headers for origin and reports whether the
// origin is allowed. Only explicitly listed origins are echoed back with
// credentials; the wildcard answers "*" without them.
func (p corsPolicy) apply(h http.Header, origin string) bool {
	if len(p.origins) > 0 {
		h.Add("Vary", "Origin")
	}

	switch {
	case p.origins[origin]:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
	case p.anyOrigin:
		h.Set("Access-Control-Allow-Origin", "*")
	default:
		return false
	}

	if p.methods != "" {
		h.Set("Access-Control-Allow-Methods", p.methods)
	}
	if p.headers != "" {
		h.Set("Access-Control-Allow-Headers", p.headers)
	}
	if p.exposed != "" {
		h.Set("Access-Control-Expose-Headers", p.exposed)
	}
	if p.maxAge != "" {
		h.Set("Access-Control-Max-Age", p.maxAge)
	}
	return true
}

// WithSecurityHeaders sets hardening headers on every response and answers
// CORS preflights from allowed origins with 204.
func WithSecurityHeaders(config SecurityConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(config)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range responseHeaders {
				h.Set(kv[0], kv[1])
			}

			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := policy.apply(h, origin)
			if allowed && r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
