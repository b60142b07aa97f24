package requestid

import "context"

// Service is one stage of a request pipeline.
//
// Ready reports whether the stage can accept a call; a nil error means
// ready. Call processes a single request. The per-request context travels
// as ctx, which is where layers attach request-scoped values.
type Service[Req, Resp any] interface {
	Ready(ctx context.Context) error
	Call(ctx context.Context, req Req) (Resp, error)
}

// ServiceFunc adapts a function to a Service that is always ready.
type ServiceFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// Ready always returns nil.
func (f ServiceFunc[Req, Resp]) Ready(context.Context) error {
	return nil
}

// Call calls f(ctx, req).
func (f ServiceFunc[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// Layer wraps one Service in another.
type Layer[Req, Resp any] func(Service[Req, Resp]) Service[Req, Resp]

// Chain applies layers to svc so that the first layer is the outermost,
// i.e. the first to see a call.
func Chain[Req, Resp any](svc Service[Req, Resp], layers ...Layer[Req, Resp]) Service[Req, Resp] {
	for i := len(layers) - 1; i >= 0; i-- {
		svc = layers[i](svc)
	}
	return svc
}

// IDService stamps every call with a fresh ID before delegating to the
// wrapped service. It holds no per-request state and is safe to share
// between goroutines.
type IDService[Req, Resp any] struct {
	inner     Service[Req, Resp]
	generator *Generator
}

// NewService wraps inner.
func NewService[Req, Resp any](inner Service[Req, Resp], opts ...Option) *IDService[Req, Resp] {
	o := newOptions(opts)
	return &IDService[Req, Resp]{
		inner:     inner,
		generator: o.generator,
	}
}

// NewLayer returns a Layer that wraps services with NewService.
func NewLayer[Req, Resp any](opts ...Option) Layer[Req, Resp] {
	return func(inner Service[Req, Resp]) Service[Req, Resp] {
		return NewService(inner, opts...)
	}
}

// Ready returns exactly what the wrapped service returns.
func (s *IDService[Req, Resp]) Ready(ctx context.Context) error {
	return s.inner.Ready(ctx)
}

// Call stores a new ID in ctx and forwards to the wrapped service. The
// response and error are returned as-is.
func (s *IDService[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	ctx = NewContext(ctx, s.generator.Generate())
	return s.inner.Call(ctx, req)
}
