package platform

import (
	"database/sql"
	"log/slog"

	"github.com/txn2/mcp-dremio/pkg/audit"
	dremiotk "github.com/txn2/mcp-dremio/pkg/toolkits/dremio"
)

// Options configures the platform.
type Options struct {
	// Config is the platform configuration.
	Config *Config

	// Logger (optional, defaults to slog.Default()).
	Logger *slog.Logger

	// DB is the audit database (optional, opened from database.dsn if not provided).
	DB *sql.DB

	// DremioClient (optional, created from the dremio section if not provided).
	DremioClient dremiotk.Client

	// AuditLogger (optional, replaces the PostgreSQL audit store).
	AuditLogger audit.Logger
}

// Option is a functional option for configuring the platform.
type Option func(*Options)

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(o *Options) {
		o.Config = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithDB sets the audit database connection. The platform does not close a
// database it did not open.
func WithDB(db *sql.DB) Option {
	return func(o *Options) {
		o.DB = db
	}
}

// WithDremioClient sets the Dremio client.
func WithDremioClient(client dremiotk.Client) Option {
	return func(o *Options) {
		o.DremioClient = client
	}
}

// WithAuditLogger sets the audit logger.
func WithAuditLogger(logger audit.Logger) Option {
	return func(o *Options) {
		o.AuditLogger = logger
	}
}
