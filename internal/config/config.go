// Package config loads the sketchd configuration.
//
// Configuration comes from a YAML file overridden by environment variables
// (see LoadWithFile). Sections owned by a domain package embed that
// package's own config type so defaults and validation live next to the
// code that uses them.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/sketchd/internal/coords"
	"github.com/fyrsmithlabs/sketchd/internal/oracle"
	"github.com/fyrsmithlabs/sketchd/internal/plan"
	"github.com/fyrsmithlabs/sketchd/internal/secrets"
	"github.com/fyrsmithlabs/sketchd/internal/store"
	"github.com/fyrsmithlabs/sketchd/internal/validator"
)

// Config holds the complete sketchd configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Oracle        OracleConfig        `koanf:"oracle"`
	Drawing       DrawingConfig       `koanf:"drawing"`
	Validator     validator.Config    `koanf:"validator"`
	Iteration     IterationConfig     `koanf:"iteration"`
	Plan          plan.Config         `koanf:"plan"`
	Execution     ExecutionConfig     `koanf:"execution"`
	NATS          NATSConfig          `koanf:"nats"`
	Store         store.Config        `koanf:"store"`
	Sessions      SessionsConfig      `koanf:"sessions"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// OracleConfig selects the language model backend.
type OracleConfig struct {
	Provider    string        `koanf:"provider"`
	Model       string        `koanf:"model"`
	APIKey      Secret        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	RPS         float64       `koanf:"rps"`
	Burst       int           `koanf:"burst"`
	MaxRetries  int           `koanf:"max_retries"`
	Temperature float64       `koanf:"temperature"`
	MaxTokens   int           `koanf:"max_tokens"`
	// Scrub redacts credentials from prompts sent to remote providers.
	Scrub secrets.Config `koanf:"scrub"`
}

// ProviderConfig converts the section for oracle.NewLLM.
func (o OracleConfig) ProviderConfig() oracle.ProviderConfig {
	return oracle.ProviderConfig{
		Provider:    o.Provider,
		Model:       o.Model,
		APIKey:      o.APIKey.Value(),
		BaseURL:     o.BaseURL,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
	}
}

// DrawingConfig describes the physical canvas and reply limits.
type DrawingConfig struct {
	coords.Box    `koanf:",squash"`
	oracle.Limits `koanf:",squash"`
	GridSize      int `koanf:"grid_size"`
}

// IterationConfig controls the repair loop.
type IterationConfig struct {
	RepairBudget int  `koanf:"repair_budget"`
	PreviewMode  bool `koanf:"preview_mode"`
}

// ExecutionConfig selects how committed strokes reach the arm.
type ExecutionConfig struct {
	// Backend is "simulate" or "nats".
	Backend        string        `koanf:"backend"`
	ChunkSize      int           `koanf:"chunk_size"`
	Device         string        `koanf:"device"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	// ExecuteInvalidFallback executes a best-of candidate that failed
	// validation. When false it is committed as preview.
	ExecuteInvalidFallback bool `koanf:"execute_invalid_fallback"`
}

// UsesNATS reports whether the process needs a bus connection.
func (c *Config) UsesNATS() bool {
	return c.Execution.Backend == "nats" || c.NATS.Events
}

// NATSConfig locates the message bus.
type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
	// Events publishes session events. The nats execution backend connects
	// regardless.
	Events bool `koanf:"events"`
}

// SessionsConfig bounds in-memory sessions.
type SessionsConfig struct {
	MaxActive int `koanf:"max_active"`
}

// LoggingConfig holds the process log level and format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
	// Protocol is "grpc" or "http".
	Protocol string `koanf:"protocol"`
	Insecure bool   `koanf:"insecure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8642,
			ShutdownTimeout: 10 * time.Second,
		},
		Oracle: OracleConfig{
			Provider:    "gemini",
			Timeout:     60 * time.Second,
			RPS:         1,
			Burst:       2,
			MaxRetries:  2,
			Temperature: 0.2,
			MaxTokens:   4096,
			Scrub:       *secrets.DefaultConfig(),
		},
		Drawing: DrawingConfig{
			Box:      coords.DefaultBox(),
			Limits:   oracle.DefaultLimits(),
			GridSize: coords.DefaultGridSize,
		},
		Validator: *validator.DefaultConfig(),
		Iteration: IterationConfig{
			RepairBudget: 1,
			PreviewMode:  true,
		},
		Plan: *plan.DefaultConfig(),
		Execution: ExecutionConfig{
			Backend:                "simulate",
			ChunkSize:              2,
			Device:                 "arm0",
			RequestTimeout:         30 * time.Second,
			ExecuteInvalidFallback: true,
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "sketchd",
		},
		Store: store.Config{
			Backend:   "file",
			Dir:       "~/.local/share/sketchd/sessions",
			CacheSize: store.DefaultCacheSize,
		},
		Sessions: SessionsConfig{MaxActive: 64},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Observability: ObservabilityConfig{
			ServiceName: "sketchd",
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	switch strings.ToLower(c.Oracle.Provider) {
	case "gemini", "google", "openai", "openrouter", "anthropic":
		if !c.Oracle.APIKey.IsSet() {
			return fmt.Errorf("oracle.api_key is required for provider %q", c.Oracle.Provider)
		}
	case "fake":
	default:
		return fmt.Errorf("unknown oracle provider %q", c.Oracle.Provider)
	}
	if c.Oracle.Timeout <= 0 {
		return errors.New("oracle.timeout must be positive")
	}
	if c.Oracle.RPS < 0 || c.Oracle.Burst < 0 || c.Oracle.MaxRetries < 0 {
		return errors.New("oracle rps, burst and max_retries must not be negative")
	}
	if _, err := secrets.New(&c.Oracle.Scrub); err != nil {
		return fmt.Errorf("oracle.scrub: %w", err)
	}

	if err := c.Drawing.Box.Validate(); err != nil {
		return fmt.Errorf("drawing: %w", err)
	}
	if c.Drawing.GridSize < 1 {
		return errors.New("drawing.grid_size must be at least 1")
	}
	if c.Drawing.MaxStrokes < 1 || c.Drawing.MaxPointsPerStroke < 2 {
		return errors.New("drawing limits must allow at least one stroke of two points")
	}
	if err := c.Validator.Validate(); err != nil {
		return err
	}
	if c.Iteration.RepairBudget < 0 {
		return errors.New("iteration.repair_budget must not be negative")
	}
	if c.Plan.MaxChain < 1 {
		return errors.New("plan.max_chain must be at least 1")
	}

	switch c.Execution.Backend {
	case "simulate", "nats":
	default:
		return fmt.Errorf("unknown execution backend %q (want simulate or nats)", c.Execution.Backend)
	}
	if c.Execution.ChunkSize < 1 {
		return errors.New("execution.chunk_size must be at least 1")
	}
	if c.Execution.Backend == "nats" && (c.NATS.URL == "" || c.Execution.Device == "") {
		return errors.New("nats.url and execution.device are required for the nats backend")
	}
	if c.NATS.Events && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats.events is enabled")
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.Dir == "" {
			return errors.New("store.dir is required for the file backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q (want file or postgres)", c.Store.Backend)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	if p := c.Observability.Protocol; p != "grpc" && p != "http" {
		return fmt.Errorf("observability.protocol must be grpc or http, got %q", p)
	}
	return nil
}
