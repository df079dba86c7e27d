// Package config provides centralized configuration management for the
// inserter service and CLI. It loads configuration from environment
// variables with sensible defaults and validates all settings on startup
// to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendBigQuery = "bigquery"
	BackendMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	BigQuery BigQueryConfig
	Insert   InsertConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing the response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds a single request, retries included (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`

	// MaxBodyBytes is the largest accepted request body (default: 32MB)
	MaxBodyBytes int64 `env:"SERVER_MAX_BODY_BYTES" default:"33554432"`
}

// StoreConfig selects the table store backend.
type StoreConfig struct {
	// Backend is "postgres", "bigquery" or "memory" (default: postgres)
	Backend string `env:"STORE_BACKEND" default:"postgres"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required for the postgres backend)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// BigQueryConfig holds BigQuery client settings.
type BigQueryConfig struct {
	// Project is the default project for table specs without one (required for the bigquery backend)
	Project string `env:"BQ_PROJECT"`

	// Endpoint overrides the API endpoint, e.g. for an emulator
	Endpoint string `env:"BQ_ENDPOINT"`

	// CredentialsFile is a service account key file; empty uses application default credentials
	CredentialsFile string `env:"BQ_CREDENTIALS_FILE"`
}

// InsertConfig holds batching, retry and concurrency settings.
type InsertConfig struct {
	// MaxBatchBytes is the approximate row data per insert call (default: 64KB)
	MaxBatchBytes int `env:"INSERT_MAX_BATCH_BYTES" default:"65536"`

	// MaxRowsPerBatch is the row cap per insert call (default: 500)
	MaxRowsPerBatch int `env:"INSERT_MAX_ROWS_PER_BATCH" default:"500"`

	// MaxAttempts is the number of insert rounds before giving up (default: 5)
	MaxAttempts int `env:"INSERT_MAX_ATTEMPTS" default:"5"`

	// InitialBackoff is the wait after the first failed round (default: 200ms)
	InitialBackoff time.Duration `env:"INSERT_INITIAL_BACKOFF" default:"200ms"`

	// BackoffMultiplier grows the wait after each failed round (default: 1.5)
	BackoffMultiplier float64 `env:"INSERT_BACKOFF_MULTIPLIER" default:"1.5"`

	// MaxBackoff caps a single wait; 0 means no cap (default: 0s)
	MaxBackoff time.Duration `env:"INSERT_MAX_BACKOFF" default:"0s"`

	// RequestsPerSecond throttles insert calls; 0 means unlimited (default: 0)
	RequestsPerSecond float64 `env:"INSERT_REQUESTS_PER_SECOND" default:"0"`

	// Workers is the size of the shared insert worker pool (default: 100)
	Workers int `env:"INSERT_WORKERS" default:"100"`

	// DefaultTable is used when a request names no table, as [project:]dataset.table
	DefaultTable string `env:"INSERT_DEFAULT_TABLE"`

	// DrainTimeout is how long shutdown waits for in-flight inserts (default: 10s)
	DrainTimeout time.Duration `env:"INSERT_DRAIN_TIMEOUT" default:"10s"`
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
