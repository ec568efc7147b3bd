// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"regexp"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Warehouse  WarehouseConfig
	Redact     RedactConfig
	Jobs       JobsConfig
	Classifier ClassifierConfig
	Rate       RateLimitConfig
	Security   SecurityConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 2m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"2m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 90s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"90s"`
}

// WarehouseConfig holds settings for the parsed-content warehouse.
// The warehouse is optional; without a URL, jobs only see staged uploads.
type WarehouseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// ContentTable holds one row per parsed document: path, content (default: files_parsed)
	ContentTable string `env:"WAREHOUSE_CONTENT_TABLE" default:"files_parsed"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a warehouse connection is configured.
func (c *WarehouseConfig) Enabled() bool {
	return c.URL != ""
}

// RedactConfig holds document redaction settings.
type RedactConfig struct {
	// MaxFileSize is the maximum allowed upload size in bytes (default: 50MB)
	MaxFileSize int64 `env:"REDACT_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent is the maximum number of documents redacted at once (default: 5)
	MaxConcurrent int `env:"REDACT_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long to wait for a redaction slot (default: 30s)
	MaxWaitTime time.Duration `env:"REDACT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds the redaction of a single document (default: 2m)
	Timeout time.Duration `env:"REDACT_TIMEOUT" default:"2m"`

	// BatchParallelism is how many documents of one batch run in parallel (default: 4)
	BatchParallelism int `env:"REDACT_BATCH_PARALLELISM" default:"4"`

	// OutputPrefix is prepended to the base name of redacted outputs (default: redacted_)
	OutputPrefix string `env:"REDACT_OUTPUT_PREFIX" default:"redacted_"`
}

// JobsConfig holds settings for asynchronous extraction jobs.
type JobsConfig struct {
	// MaxWait is how long a job may stay pending before polls report it expired (default: 5m)
	MaxWait time.Duration `env:"JOBS_MAX_WAIT" default:"5m"`

	// BackingTimeout bounds the parse and classify work itself (default: 15m)
	BackingTimeout time.Duration `env:"JOBS_BACKING_TIMEOUT" default:"15m"`

	// Retention is how long finished jobs stay pollable (default: 1h)
	Retention time.Duration `env:"JOBS_RETENTION" default:"1h"`

	// SweepInterval is how often overdue and old jobs are swept (default: 1m)
	SweepInterval time.Duration `env:"JOBS_SWEEP_INTERVAL" default:"1m"`

	// MaxConcurrent is the maximum number of backing operations at once (default: 4)
	MaxConcurrent int `env:"JOBS_MAX_CONCURRENT" default:"4"`

	// PollInterval is the client polling hint returned with job handles (default: 5s)
	PollInterval time.Duration `env:"JOBS_POLL_INTERVAL" default:"5s"`
}

// ClassifierConfig holds settings for the external entity classifier.
type ClassifierConfig struct {
	// URL is the classifier base URL; empty disables classification
	URL string `env:"CLASSIFIER_URL"`

	// Timeout bounds a single classify call (default: 2m)
	Timeout time.Duration `env:"CLASSIFIER_TIMEOUT" default:"2m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// RedactLimit is requests per minute for redact and export endpoints (default: 20)
	RedactLimit int `env:"RATE_LIMIT_REDACT" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// tableNamePattern accepts plain or schema-qualified SQL identifiers.
var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// ValidTableName reports whether name is safe to interpolate as a table name.
func ValidTableName(name string) bool {
	return tableNamePattern.MatchString(name)
}
