package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcncl/request-id/internal/config"
	"github.com/mcncl/request-id/internal/errors"
	"github.com/mcncl/request-id/internal/health"
	"github.com/mcncl/request-id/internal/logging"
	"github.com/mcncl/request-id/internal/metrics"
	loggingMiddleware "github.com/mcncl/request-id/internal/middleware/logging"
	"github.com/mcncl/request-id/internal/middleware/security"
	"github.com/mcncl/request-id/internal/telemetry"
	"github.com/mcncl/request-id/pkg/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "Path to configuration file (JSON or YAML)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Log format (json, text, dev)")
	flag.Parse()

	bootLogger := logging.NewLogger("info", "json")

	cfg, err := config.Load(*configFile, &config.Config{
		Logging: config.LoggingConfig{Level: *logLevel, Format: *logFormat},
	})
	if err != nil {
		bootLogger.Error("Failed to load configuration", "error", err, "details", errors.GetDetails(err))
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format).With("version", version)
	slog.SetDefault(logger)
	logger.Info("Configuration loaded", "config", cfg.String())

	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	healthCheck := health.NewHealthCheck()

	reg := prometheus.NewRegistry()
	if err := metrics.InitMetrics(reg); err != nil {
		return errors.Wrap(err, "failed to initialize metrics")
	}

	tracing := passthrough
	if cfg.Telemetry.Enabled {
		tcfg := telemetry.DefaultConfig()
		tcfg.ServiceName = cfg.Telemetry.ServiceName
		tcfg.ServiceVersion = version
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
		tcfg.SamplingRatio = cfg.Telemetry.SamplingRatio

		provider, err := telemetry.NewProvider(tcfg)
		if err != nil {
			return errors.Wrap(err, "failed to create telemetry provider")
		}
		if err := provider.Start(ctx); err != nil {
			return errors.Wrap(err, "failed to start telemetry provider")
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				logger.Error("Telemetry shutdown error", "error", err)
			}
		}()
		tracing = provider.TracingMiddleware
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newHTTPHandler(ctx, cfg, logger, healthCheck, reg, tracing),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- errors.Wrap(err, "HTTP server error")
		}
	}()

	var grpcServer *grpc.Server
	if cfg.Server.GRPCPort != 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			return errors.Wrap(err, "failed to listen for gRPC")
		}
		grpcServer = newGRPCServer(logger, healthCheck)

		go func() {
			logger.Info("gRPC server starting", "port", cfg.Server.GRPCPort)
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- errors.Wrap(err, "gRPC server error")
			}
		}()
	}

	healthCheck.SetReady(true)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down server", "signal", sig.String())
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	healthCheck.SetReady(false)
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	return runErr
}

// newHTTPHandler builds the routed handler. Every route gets a request ID
// first; only the echo route is rate limited. Background work started for
// the handler stops with ctx.
func newHTTPHandler(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	healthCheck *health.HealthCheck,
	reg *prometheus.Registry,
	tracing func(http.Handler) http.Handler,
) http.Handler {
	var idOpts []requestid.Option
	if cfg.RequestID.ResponseHeader != "" {
		idOpts = append(idOpts, requestid.WithResponseHeader(cfg.RequestID.ResponseHeader))
	}

	securityConfig := security.DefaultConfig()
	securityConfig.AllowedOrigins = cfg.Security.AllowedOrigins
	securityConfig.AllowedMethods = cfg.Security.AllowedMethods
	securityConfig.AllowedHeaders = cfg.Security.AllowedHeaders
	if cfg.RequestID.ResponseHeader != "" {
		securityConfig.ExposedHeaders = []string{cfg.RequestID.ResponseHeader}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", healthCheck.HealthHandler)
	mux.HandleFunc("/ready", healthCheck.ReadyHandler)
	mux.Handle("/", chainMiddleware(
		http.HandlerFunc(echoHandler),
		security.WithRateLimit(cfg.Security.RateLimit),
		security.WithIPRateLimit(ctx, cfg.Security.IPRateLimit,
			security.TrustForwardedFor(cfg.Security.TrustForwardedFor),
		),
	))

	// Note: The order of middleware is important!
	return chainMiddleware(
		mux,
		requestid.Middleware(idOpts...), // Generate request ID first
		tracing,
		loggingMiddleware.WithStructuredLogging(logger),
		metrics.WithMetrics,
		security.WithSecurityHeaders(securityConfig),
	)
}

func newGRPCServer(logger *slog.Logger, healthCheck *health.HealthCheck) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			requestid.UnaryServerInterceptor(),
			loggingMiddleware.UnaryServerInterceptor(logger),
		),
		grpc.ChainStreamInterceptor(
			requestid.StreamServerInterceptor(),
			loggingMiddleware.StreamServerInterceptor(logger),
		),
	)

	hs := grpchealth.NewServer()
	healthCheck.BindGRPC(hs)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

type echoResponse struct {
	RequestID string `json:"request_id"`
	Method    string `json:"method"`
	URI       string `json:"uri"`
}

// echoHandler reports the span the request was logged under.
func echoHandler(w http.ResponseWriter, r *http.Request) {
	span := requestid.MakeSpan(r)
	logging.FromContext(r.Context()).Debug("Echoing request span")

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(echoResponse{
		RequestID: span.ID,
		Method:    span.Method,
		URI:       span.URI,
	}); err != nil {
		logging.FromContext(r.Context()).Error("Failed to write response", "error", err)
	}
}

func passthrough(next http.Handler) http.Handler { return next }

// Middleware chain helper - applies middleware in reverse order
// so they execute in the order they're passed
func chainMiddleware(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}
