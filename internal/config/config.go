// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	CKAN     CKANConfig
	Ingest   IngestConfig
	HTTP     HTTPConfig
	Retry    RetryConfig
	Server   ServerConfig
	Database DatabaseConfig
	History  HistoryConfig
	Logging  LoggingConfig
}

// CKANConfig holds the remote store endpoint and credentials.
type CKANConfig struct {
	// SiteURL is the CKAN base URL, e.g. https://data.example.org (required)
	SiteURL string `env:"CKAN_SITE_URL" required:"true"`

	// APIKey is sent verbatim in the Authorization header (required)
	APIKey string `env:"CKAN_API_KEY" envAlt:"CKAN_APIKEY" required:"true"`
}

// IngestConfig holds pipeline settings shared by every resource run.
type IngestConfig struct {
	// ChunkSize is the number of records per datastore_create call (default: 100)
	ChunkSize int `env:"INGEST_CHUNK_SIZE" default:"100"`

	// SampleSize is the number of rows used for header and type detection (default: 1000)
	SampleSize int `env:"INGEST_SAMPLE_SIZE" default:"1000"`

	// MaxContentLength is the largest accepted source file in bytes (default: 50MB)
	MaxContentLength int64 `env:"INGEST_MAX_CONTENT_LENGTH" default:"50000000"`

	// Parallelism is how many resources a batch run ingests at once (default: 1)
	Parallelism int `env:"INGEST_PARALLELISM" default:"1"`

	// MaxConcurrent bounds simultaneous ingests accepted by the server (default: 2)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"2"`

	// MaxWaitTime is how long the server waits for an ingest slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`
}

// HTTPConfig holds outbound HTTP client settings.
type HTTPConfig struct {
	// Timeout bounds each call to the remote store (default: 60s)
	Timeout time.Duration `env:"HTTP_TIMEOUT" default:"60s"`
}

// RetryConfig controls retries of idempotent remote calls.
// MaxAttempts of 1 disables retrying.
type RetryConfig struct {
	MaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS" default:"1"`
	InitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" default:"1s"`
	MaxDelay     time.Duration `env:"RETRY_MAX_DELAY" default:"30s"`
	Multiplier   float64       `env:"RETRY_MULTIPLIER" default:"2.0"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds the optional run-history database settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string. Empty keeps history in memory.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`
}

// HistoryConfig holds run history settings.
type HistoryConfig struct {
	// Size is how many runs the in-memory history keeps (default: 200)
	Size int `env:"HISTORY_SIZE" default:"200"`

	// Retention is how long runs are kept; 0 keeps them forever (default: 90 days)
	Retention time.Duration `env:"HISTORY_RETENTION" default:"2160h"`

	// PruneInterval is how often expired runs are removed (default: 24h)
	PruneInterval time.Duration `env:"HISTORY_PRUNE_INTERVAL" default:"24h"`
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
