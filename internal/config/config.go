// Package config provides a standardized way to load, validate, and access application configuration.
// It supports loading configuration from environment variables, files (JSON/YAML), and explicit overrides.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/mcncl/request-id/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
	RequestID RequestIDConfig `json:"request_id" yaml:"request_id"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Security  SecurityConfig  `json:"security" yaml:"security"`
}

// ServerConfig holds HTTP and gRPC listener configuration
type ServerConfig struct {
	Port            int           `json:"port" yaml:"port" envconfig:"PORT"`
	GRPCPort        int           `json:"grpc_port" yaml:"grpc_port" envconfig:"GRPC_PORT"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout,omitempty" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout,omitempty" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout,omitempty" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout,omitempty" envconfig:"SHUTDOWN_TIMEOUT"`
}

// LoggingConfig selects the slog level and handler
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `json:"format" yaml:"format" envconfig:"LOG_FORMAT"`
}

// RequestIDConfig controls how request IDs are exposed to clients.
// An empty ResponseHeader leaves responses untouched.
type RequestIDConfig struct {
	ResponseHeader string `json:"response_header" yaml:"response_header" envconfig:"REQUEST_ID_RESPONSE_HEADER"`
}

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	Enabled       bool    `json:"enabled" yaml:"enabled" envconfig:"ENABLE_TRACING"`
	OTLPEndpoint  string  `json:"otlp_endpoint" yaml:"otlp_endpoint" envconfig:"OTLP_ENDPOINT"`
	ServiceName   string  `json:"service_name" yaml:"service_name" envconfig:"SERVICE_NAME"`
	SamplingRatio float64 `json:"sampling_ratio" yaml:"sampling_ratio" envconfig:"TRACE_SAMPLING_RATIO"`
}

// SecurityConfig holds security related configuration. TrustForwardedFor
// keys the per-IP limiter on X-Forwarded-For and belongs only behind a proxy
// that rewrites that header.
type SecurityConfig struct {
	RateLimit         int      `json:"rate_limit" yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	IPRateLimit       int      `json:"ip_rate_limit" yaml:"ip_rate_limit" envconfig:"IP_RATE_LIMIT"`
	TrustForwardedFor bool     `json:"trust_forwarded_for" yaml:"trust_forwarded_for" envconfig:"TRUST_FORWARDED_FOR"`
	AllowedOrigins    []string `json:"allowed_origins" yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AllowedMethods    []string `json:"allowed_methods" yaml:"allowed_methods" envconfig:"ALLOWED_METHODS"`
	AllowedHeaders    []string `json:"allowed_headers" yaml:"allowed_headers" envconfig:"ALLOWED_HEADERS"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			GRPCPort:        9090,
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint:  "localhost:4317",
			ServiceName:   "request-id",
			SamplingRatio: 0.1,
		},
		Security: SecurityConfig{
			RateLimit:      600, // requests per minute
			IPRateLimit:    120, // requests per minute per IP
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept",
				"Content-Type",
				"Content-Length",
				"Accept-Encoding",
				"Authorization",
			},
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1024 || c.Server.Port > 65535 {
		return errors.NewValidationError("Server.Port must be between 1024 and 65535")
	}
	if c.Server.GRPCPort != 0 {
		if c.Server.GRPCPort < 1024 || c.Server.GRPCPort > 65535 {
			return errors.NewValidationError("Server.GRPCPort must be 0 or between 1024 and 65535")
		}
		if c.Server.GRPCPort == c.Server.Port {
			return errors.NewValidationError("Server.GRPCPort must differ from Server.Port")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if _, ok := validLogLevels[strings.ToLower(c.Logging.Level)]; !ok {
		return errors.NewValidationError("Logging.Level must be one of: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text", "dev":
	default:
		return errors.NewValidationError("Logging.Format must be one of: json, text, dev")
	}

	if h := c.RequestID.ResponseHeader; h != "" && strings.ContainsAny(h, " \t\r\n:") {
		return errors.NewValidationError(fmt.Sprintf("RequestID.ResponseHeader %q is not a valid header name", h))
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.OTLPEndpoint == "" {
			return errors.NewValidationError("Telemetry.OTLPEndpoint is required when tracing is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			return errors.NewValidationError("Telemetry.ServiceName is required when tracing is enabled")
		}
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return errors.NewValidationError("Telemetry.SamplingRatio must be between 0 and 1")
	}

	if c.Security.RateLimit < 0 {
		return errors.NewValidationError("Security.RateLimit cannot be negative")
	}
	if c.Security.IPRateLimit < 0 {
		return errors.NewValidationError("Security.IPRateLimit cannot be negative")
	}

	return nil
}

// applyEnv overlays set environment variables onto cfg.
func applyEnv(cfg *Config) error {
	sections := []interface{}{
		&cfg.Server,
		&cfg.Logging,
		&cfg.RequestID,
		&cfg.Telemetry,
		&cfg.Security,
	}
	for _, section := range sections {
		if err := envconfig.Process("", section); err != nil {
			return errors.WithDetails(
				errors.NewValidationError("invalid environment configuration"),
				map[string]interface{}{"cause": err.Error()},
			)
		}
	}
	return nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON or YAML file. Durations are
// written as strings such as "30s".
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml":
		// JSON documents are valid YAML, so one decoder covers both.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	default:
		return nil, errors.NewValidationError("unsupported config file format: " + ext)
	}

	return cfg, nil
}

// MergeConfigs merges two configurations, with the second taking precedence
func MergeConfigs(base, override *Config) *Config {
	result := *base

	// Only override non-zero values
	if override == nil {
		return &result
	}

	// Server config
	if override.Server.Port != 0 {
		result.Server.Port = override.Server.Port
	}
	if override.Server.GRPCPort != 0 {
		result.Server.GRPCPort = override.Server.GRPCPort
	}
	if override.Server.ReadTimeout != 0 {
		result.Server.ReadTimeout = override.Server.ReadTimeout
	}
	if override.Server.WriteTimeout != 0 {
		result.Server.WriteTimeout = override.Server.WriteTimeout
	}
	if override.Server.IdleTimeout != 0 {
		result.Server.IdleTimeout = override.Server.IdleTimeout
	}
	if override.Server.ShutdownTimeout != 0 {
		result.Server.ShutdownTimeout = override.Server.ShutdownTimeout
	}

	// Logging config
	if override.Logging.Level != "" {
		result.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		result.Logging.Format = override.Logging.Format
	}

	// Request ID config
	if override.RequestID.ResponseHeader != "" {
		result.RequestID.ResponseHeader = override.RequestID.ResponseHeader
	}

	// Telemetry config
	// We need to explicitly check booleans
	if override.Telemetry.Enabled {
		result.Telemetry.Enabled = true
	}
	if override.Telemetry.OTLPEndpoint != "" {
		result.Telemetry.OTLPEndpoint = override.Telemetry.OTLPEndpoint
	}
	if override.Telemetry.ServiceName != "" {
		result.Telemetry.ServiceName = override.Telemetry.ServiceName
	}
	if override.Telemetry.SamplingRatio != 0 {
		result.Telemetry.SamplingRatio = override.Telemetry.SamplingRatio
	}

	// Security config
	if override.Security.RateLimit != 0 {
		result.Security.RateLimit = override.Security.RateLimit
	}
	if override.Security.IPRateLimit != 0 {
		result.Security.IPRateLimit = override.Security.IPRateLimit
	}
	if override.Security.TrustForwardedFor {
		result.Security.TrustForwardedFor = true
	}
	if len(override.Security.AllowedOrigins) > 0 {
		result.Security.AllowedOrigins = override.Security.AllowedOrigins
	}
	if len(override.Security.AllowedMethods) > 0 {
		result.Security.AllowedMethods = override.Security.AllowedMethods
	}
	if len(override.Security.AllowedHeaders) > 0 {
		result.Security.AllowedHeaders = override.Security.AllowedHeaders
	}

	return &result
}

// Load loads the configuration from multiple sources with the following precedence:
// 1. Override (highest precedence)
// 2. Environment variables
// 3. Config file
// 4. Default values (lowest precedence)
func Load(configFile string, override *Config) (*Config, error) {
	cfg := DefaultConfig()

	if configFile != "" {
		fileCfg, err := LoadFromFile(configFile)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if override != nil {
		cfg = MergeConfigs(cfg, override)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// String returns a JSON representation of the configuration
func (c *Config) String() string {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Error marshaling config: %v", err)
	}

	return string(bytes)
}
