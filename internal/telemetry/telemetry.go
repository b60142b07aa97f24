package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/mcncl/request-id/internal/logging"
	"github.com/mcncl/request-id/pkg/requestid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider wraps the OpenTelemetry trace provider and exporter
type Provider struct {
	tp       *sdktrace.TracerProvider
	exporter sdktrace.SpanExporter
	injected bool
	config   Config
	mu       sync.RWMutex
	isInit   bool
}

// Config holds configuration for telemetry setup
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTLPEndpoint   string
	SamplingRatio  float64
	MaxExportBatch int
	MaxQueueSize   int
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		SamplingRatio:  0.1,
		MaxExportBatch: 512,
		MaxQueueSize:   2048,
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service name cannot be empty")
	}
	if c.SamplingRatio < 0 || c.SamplingRatio > 1 {
		return fmt.Errorf("sampling ratio must be between 0 and 1, got %v", c.SamplingRatio)
	}
	return nil
}

// Option configures a Provider.
type Option func(*Provider)

// WithExporter replaces the OTLP exporter. Spans are exported synchronously.
func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(p *Provider) {
		p.exporter = exp
		p.injected = true
	}
}

// NewProvider creates a new telemetry provider
func NewProvider(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	p := &Provider{config: cfg}
	for _, opt := range opts {
		opt(p)
	}

	if !p.injected && cfg.OTLPEndpoint == "" {
		return nil, fmt.Errorf("invalid config: OTLP endpoint cannot be empty")
	}

	return p, nil
}

// Start initializes the telemetry provider
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isInit {
		return fmt.Errorf("provider already initialized")
	}

	if !p.injected {
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(p.config.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)

		exp, err := otlptrace.New(ctx, client)
		if err != nil {
			return fmt.Errorf("creating OTLP trace exporter: %w", err)
		}
		p.exporter = exp
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(p.config.ServiceName),
			semconv.ServiceVersionKey.String(p.config.ServiceVersion),
			attribute.String("environment", p.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("creating resource: %w", err)
	}

	var processor sdktrace.TracerProviderOption
	if p.injected {
		processor = sdktrace.WithSyncer(p.exporter)
	} else {
		processor = sdktrace.WithBatcher(p.exporter,
			sdktrace.WithMaxExportBatchSize(p.config.MaxExportBatch),
			sdktrace.WithMaxQueueSize(p.config.MaxQueueSize),
		)
	}

	p.tp = sdktrace.NewTracerProvider(
		processor,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(p.config.SamplingRatio))),
	)

	otel.SetTracerProvider(p.tp)
	p.isInit = true

	return nil
}

// Shutdown flushes pending spans and stops the provider. The exporter is
// shut down by the trace provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isInit {
		return nil
	}

	p.isInit = false

	if err := p.tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down trace provider: %w", err)
	}
	return nil
}

func (p *Provider) tracer() trace.Tracer {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.isInit {
		return nil
	}
	return p.tp.Tracer(p.config.ServiceName)
}

// TracingMiddleware opens a "request" span per HTTP request carrying the
// request id, method and uri. Install it inside requestid.Middleware.
func (p *Provider) TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := p.tracer()
		if tracer == nil {
			next.ServeHTTP(w, r)
			return
		}

		reqSpan := requestid.MakeSpan(r)
		attrs := append(reqSpan.Attributes(),
			semconv.HTTPRequestMethodKey.String(r.Method),
			semconv.URLPathKey.String(r.URL.Path),
		)

		ctx, span := tracer.Start(r.Context(), requestid.SpanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		wrapped := logging.NewLogResponseWriter(w)
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		status := wrapped.StatusCode()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
