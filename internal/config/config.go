// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Parse    ParseConfig
	Watch    WatchConfig
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

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are believed
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// APIKeys is a comma-separated list of keys accepted in X-API-Key;
	// the API is open when empty
	APIKeys []string `env:"API_KEYS"`
}

// DatabaseConfig holds database connection settings. The database is only
// needed when parsed rows are copied into a table.
type DatabaseConfig struct {
	// URL is the connection string: postgres://, sqlite:, mysql:// or mongodb://
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ParseConfig holds CSV parsing settings shared by the CLI, the HTTP API and
// the watcher.
type ParseConfig struct {
	// SchemaDir holds the *.yaml shape files (default: shapes)
	SchemaDir string `env:"CSV_SCHEMA_DIR" default:"shapes"`

	// Separator overrides the field separator of every shape when set
	Separator rune `env:"CSV_SEPARATOR"`

	// Quote overrides the quote character of every shape when set
	Quote rune `env:"CSV_QUOTE"`

	// Charset overrides the input charset of every shape when set
	Charset string `env:"CSV_CHARSET"`

	// MaxFileSize is the maximum accepted request body in bytes (default: 100MB)
	MaxFileSize int64 `env:"CSV_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of parse calls served at once (default: 5)
	MaxConcurrent int `env:"CSV_MAX_CONCURRENT" default:"5"`

	// MaxWaitTime is how long a request waits for a parse slot (default: 30s)
	MaxWaitTime time.Duration `env:"CSV_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single parse call (default: 10m)
	Timeout time.Duration `env:"CSV_TIMEOUT" default:"10m"`

	// DiagnosticLimit caps the diagnostics kept per call; 0 keeps all (default: 1000)
	DiagnosticLimit int `env:"CSV_DIAGNOSTIC_LIMIT" default:"1000"`
}

// WatchConfig holds settings for the inbox watcher.
type WatchConfig struct {
	// Dir is the inbox directory (default: inbox)
	Dir string `env:"WATCH_DIR" default:"inbox"`

	// ProcessedDir receives files after they were parsed (default: inbox/processed)
	ProcessedDir string `env:"WATCH_PROCESSED_DIR" default:"inbox/processed"`

	// FailedDir receives the "<name> - failed.csv" reports (default: inbox/failed)
	FailedDir string `env:"WATCH_FAILED_DIR" default:"inbox/failed"`

	// Shape is the shape used for every file in the inbox
	Shape string `env:"WATCH_SHAPE"`

	// Table is the sink table; blank uses the shape's table
	Table string `env:"WATCH_TABLE"`

	// Debounce is the quiet period after the last write event (default: 500ms)
	Debounce time.Duration `env:"WATCH_DEBOUNCE" default:"500ms"`

	// Sweep is the cron schedule of the full inbox re-scan (default: @every 5m)
	Sweep string `env:"WATCH_SWEEP" default:"@every 5m"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
