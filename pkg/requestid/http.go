package requestid

import "net/http"

// WithRequestID stores a fresh ID in the request context and calls next.
// Nothing else about the request or response is changed.
func WithRequestID(next http.Handler) http.Handler {
	return Middleware()(next)
}

// Middleware returns WithRequestID configured with opts.
//
// Any ID the client sent in a header is ignored; a new one is always
// generated.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	o := newOptions(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := o.generator.Generate()
			if o.header != "" {
				w.Header().Set(o.header, id.String())
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
		})
	}
}
