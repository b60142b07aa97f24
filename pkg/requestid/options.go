package requestid

// DefaultHeader is the conventional header for echoing request IDs.
const DefaultHeader = "X-Request-ID"

type options struct {
	generator *Generator
	header    string
}

// Option configures the middleware, interceptors and IDService.
type Option func(*options)

// WithGenerator replaces the default generator.
func WithGenerator(g *Generator) Option {
	return func(o *options) {
		if g != nil {
			o.generator = g
		}
	}
}

// WithResponseHeader makes the HTTP middleware echo the ID in the named
// response header. An empty name disables the echo, which is the default.
func WithResponseHeader(name string) Option {
	return func(o *options) {
		o.header = name
	}
}

func newOptions(opts []Option) options {
	o := options{
		generator: Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
