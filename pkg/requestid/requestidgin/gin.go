// Package requestidgin adapts requestid to the gin framework.
package requestidgin

import (
	"github.com/gin-gonic/gin"
	"github.com/mcncl/request-id/pkg/requestid"
)

// New returns gin middleware that stores a fresh request ID in the
// request context before calling the next handler.
func New(opts ...Option) gin.HandlerFunc {
	cfg := config{generator: requestid.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(c *gin.Context) {
		id := cfg.generator.Generate()
		if cfg.header != "" {
			c.Header(cfg.header, id.String())
		}
		c.Request = c.Request.WithContext(requestid.NewContext(c.Request.Context(), id))
		c.Next()
	}
}

// Get returns the request ID stored by New.
func Get(c *gin.Context) (requestid.ID, bool) {
	return requestid.FromContext(c.Request.Context())
}

// MakeSpan builds the request span for c.
func MakeSpan(c *gin.Context) requestid.Span {
	return requestid.MakeSpan(c.Request)
}

type config struct {
	generator *requestid.Generator
	header    string
}

// Option configures the gin middleware.
type Option func(*config)

// WithGenerator replaces the default generator.
func WithGenerator(g *requestid.Generator) Option {
	return func(c *config) {
		if g != nil {
			c.generator = g
		}
	}
}

// WithResponseHeader echoes the ID in the named response header.
func WithResponseHeader(name string) Option {
	return func(c *config) {
		c.header = name
	}
}
