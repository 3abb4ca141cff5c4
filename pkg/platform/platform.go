package platform

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-dremio/pkg/audit"
	auditpg "github.com/txn2/mcp-dremio/pkg/audit/postgres"
	"github.com/txn2/mcp-dremio/pkg/database/migrate"
	dremioclient "github.com/txn2/mcp-dremio/pkg/dremio"
	"github.com/txn2/mcp-dremio/pkg/health"
	mcphttp "github.com/txn2/mcp-dremio/pkg/http"
	dremiotk "github.com/txn2/mcp-dremio/pkg/toolkits/dremio"
)

// Health check names.
const (
	CheckDremio  = "dremio"
	CheckAuditDB = "audit_db"
)

const (
	defaultVersion = "dev"
	toolkitName    = "dremio"
)

// runMigrations applies the audit schema. Tests replace it.
var runMigrations = migrate.Run

// openDB opens the audit database. Tests replace it.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("postgres", dsn)
}

// Platform is the main platform facade.
type Platform struct {
	config *Config
	logger *slog.Logger

	mcpServer *mcp.Server
	toolkit   *dremiotk.Toolkit
	health    *health.Checker
	lifecycle *Lifecycle
	keys      *mcphttp.KeyVerifier

	// Audit
	db          *sql.DB
	ownsDB      bool
	auditLogger audit.Logger
	auditStore  *auditpg.Store
}

// New creates a new platform instance.
func New(opts ...Option) (*Platform, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	if options.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := options.Config.Validate(); err != nil {
		return nil, err
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	p := &Platform{
		config:    options.Config,
		logger:    options.Logger,
		health:    health.NewChecker(),
		lifecycle: NewLifecycle(options.Logger),
		keys:      mcphttp.NewKeyVerifier(options.Config.Server.APIKeys),
	}

	if err := p.initToolkit(options); err != nil {
		return nil, err
	}
	if err := p.initAudit(options); err != nil {
		_ = p.closeDB()
		return nil, fmt.Errorf("initializing audit: %w", err)
	}
	p.initServer()

	return p, nil
}

func (p *Platform) initToolkit(opts *Options) error {
	dc, err := p.config.DremioConfig()
	if err != nil {
		return fmt.Errorf("dremio: %w", err)
	}

	if opts.DremioClient != nil {
		p.toolkit = dremiotk.NewWithClient(toolkitName, dc, opts.DremioClient, p.logger)
	} else if p.toolkit, err = dremiotk.New(toolkitName, dc, p.logger); err != nil {
		return fmt.Errorf("creating dremio toolkit: %w", err)
	}

	p.toolkit.SetCallerIdentifier(func(h http.Header) string {
		name, _ := p.keys.Identify(h)
		return name
	})
	return nil
}

// initAudit wires the audit logger: an injected logger wins, otherwise the
// PostgreSQL store when audit is enabled.
func (p *Platform) initAudit(opts *Options) error {
	if opts.AuditLogger != nil {
		p.auditLogger = opts.AuditLogger
		p.toolkit.SetAuditLogger(opts.AuditLogger)
		return nil
	}
	if !p.config.AuditEnabled() {
		return nil
	}

	if opts.DB != nil {
		p.db = opts.DB
	} else {
		db, err := openDB(p.config.Database.DSN)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		db.SetMaxOpenConns(p.config.Database.MaxOpenConns)
		p.db = db
		p.ownsDB = true
	}

	if err := runMigrations(p.db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	p.auditStore = auditpg.New(p.db, auditpg.Config{
		RetentionDays: p.config.Audit.RetentionDays,
		Logger:        p.logger,
	})
	p.auditLogger = p.auditStore
	p.toolkit.SetAuditLogger(p.auditStore)

	interval := p.config.Audit.CleanupInterval
	p.lifecycle.Append("audit-cleanup",
		func(context.Context) error {
			p.auditStore.StartCleanupRoutine(interval)
			return nil
		},
		func(context.Context) error {
			return p.auditStore.Close()
		})

	p.logger.Info("audit trail enabled", "retention_days", p.config.Audit.RetentionDays)
	return nil
}

func (p *Platform) initServer() {
	version := p.config.Server.Version
	if version == "" {
		version = defaultVersion
	}
	p.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    p.config.Server.Name,
		Version: version,
	}, &mcp.ServerOptions{Instructions: p.config.Server.Instructions})
	p.toolkit.RegisterTools(p.mcpServer)
}

// Start starts background components, runs the startup checks and marks the
// platform ready. Failing checks leave readiness degraded but do not fail
// Start.
func (p *Platform) Start(ctx context.Context) error {
	if err := p.lifecycle.Start(ctx); err != nil {
		return err
	}

	if p.config.StartupPingEnabled() {
		if err := p.PingDremio(ctx); err != nil {
			p.logger.Warn("dremio startup check failed", "kind", dremioclient.Kind(err), "error", err)
		}
	}
	if p.db != nil {
		if err := p.health.Probe(ctx, CheckAuditDB, p.db.PingContext); err != nil {
			p.logger.Warn("audit database check failed", "error", err)
		}
	}

	p.health.SetReady()
	p.logger.Info("platform ready", "name", p.config.Server.Name, "connection", p.toolkit.Connection())
	return nil
}

// PingDremio checks the Dremio connection and records the outcome as the
// dremio health check.
func (p *Platform) PingDremio(ctx context.Context) error {
	return p.health.Probe(ctx, CheckDremio, p.toolkit.Client().Ping)
}

// Stop marks the platform draining and stops background components.
func (p *Platform) Stop(ctx context.Context) error {
	p.health.SetDraining()
	return p.lifecycle.Stop(ctx)
}

// Close stops the platform and releases every resource it owns.
func (p *Platform) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := p.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if p.auditLogger != nil {
		if err := p.auditLogger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit logger: %w", err))
		}
	}
	if err := p.toolkit.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing toolkit: %w", err))
	}
	if err := p.closeDB(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *Platform) closeDB() error {
	if p.db == nil || !p.ownsDB {
		return nil
	}
	db := p.db
	p.db = nil
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Config returns the platform configuration.
func (p *Platform) Config() *Config {
	return p.config
}

// MCPServer returns the MCP server with the Dremio tools registered.
func (p *Platform) MCPServer() *mcp.Server {
	return p.mcpServer
}

// Toolkit returns the Dremio toolkit.
func (p *Platform) Toolkit() *dremiotk.Toolkit {
	return p.toolkit
}

// KeyVerifier returns the API key verifier for the HTTP transport.
func (p *Platform) KeyVerifier() *mcphttp.KeyVerifier {
	return p.keys
}

// Health returns the health checker.
func (p *Platform) Health() *health.Checker {
	return p.health
}

// AuditStore returns the PostgreSQL audit store, or nil when the audit trail
// is disabled or replaced by an injected logger.
func (p *Platform) AuditStore() *auditpg.Store {
	return p.auditStore
}
