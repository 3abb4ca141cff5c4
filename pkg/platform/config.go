// Package platform wires configuration, the Dremio toolkit, the audit store
// and health checks into one MCP server.
package platform

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	mcphttp "github.com/txn2/mcp-dremio/pkg/http"
	dremiotk "github.com/txn2/mcp-dremio/pkg/toolkits/dremio"
)

// Transports supported by the server.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

const (
	defaultServerName      = "mcp-dremio"
	defaultAddress         = ":8080"
	defaultMaxOpenConns    = 10
	defaultRetentionDays   = 90
	defaultCleanupInterval = 24 * time.Hour
	defaultShutdownTimeout = 15 * time.Second
)

// Config holds the complete server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Dremio   map[string]any `yaml:"dremio"`
	Database DatabaseConfig `yaml:"database"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Name            string           `yaml:"name"`
	Version         string           `yaml:"version"`
	Instructions    string           `yaml:"instructions"`
	Transport       string           `yaml:"transport"` // "stdio", "http"
	Address         string           `yaml:"address"`
	APIKeys         []mcphttp.APIKey `yaml:"api_keys"`
	StartupPing     *bool            `yaml:"startup_ping"` // default: true
	ShutdownTimeout time.Duration    `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the audit database connection.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// AuditConfig configures the audit trail.
type AuditConfig struct {
	Enabled         *bool         `yaml:"enabled"` // default: true when database.dsn is set
	RetentionDays   int           `yaml:"retention_days"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// LoadConfig loads configuration from a file.
// The path is expected to come from command line arguments, controlled by the administrator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by admin
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, expanding ${VAR} references from
// the environment and applying defaults.
func ParseConfig(data []byte) (*Config, error) {
	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// ConfigFromEnv builds a configuration from DREMIO_* environment variables
// alone, for running without a config file.
func ConfigFromEnv() *Config {
	cfg := &Config{}
	ApplyEnv(cfg, os.Getenv)
	applyDefaults(cfg)
	return cfg
}

// envKeys maps environment variables to keys of the dremio section.
var envKeys = []struct {
	env string
	key string
}{
	{"DREMIO_TYPE", "type"},
	{"DREMIO_BASE_URL", "base_url"},
	{"DREMIO_TOKEN", "token"},
	{"DREMIO_PROJECT_ID", "project_id"},
	{"DREMIO_SKIP_TLS_VERIFY", "skip_tls_verify"},
}

// ApplyEnv overrides dremio connection settings with the DREMIO_* variables
// that are set. MCP_DREMIO_DATABASE_DSN sets the audit database, which turns
// the audit trail on unless audit.enabled or MCP_DREMIO_AUDIT_ENABLED says
// otherwise. An unparsable MCP_DREMIO_AUDIT_ENABLED is ignored.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	for _, e := range envKeys {
		v := getenv(e.env)
		if v == "" {
			continue
		}
		if cfg.Dremio == nil {
			cfg.Dremio = make(map[string]any)
		}
		cfg.Dremio[e.key] = v
	}
	if dsn := getenv("MCP_DREMIO_DATABASE_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if v := getenv("MCP_DREMIO_AUDIT_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Audit.Enabled = &enabled
		}
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = defaultServerName
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = TransportStdio
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultAddress
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.Audit.RetentionDays == 0 {
		cfg.Audit.RetentionDays = defaultRetentionDays
	}
	if cfg.Audit.CleanupInterval == 0 {
		cfg.Audit.CleanupInterval = defaultCleanupInterval
	}
}

// StartupPingEnabled reports whether the server pings Dremio before turning
// ready.
func (c *Config) StartupPingEnabled() bool {
	return c.Server.StartupPing == nil || *c.Server.StartupPing
}

// AuditEnabled reports whether the audit trail is on. Without an explicit
// audit.enabled it follows whether a database is configured.
func (c *Config) AuditEnabled() bool {
	if c.Audit.Enabled != nil {
		return *c.Audit.Enabled
	}
	return c.Database.DSN != ""
}

// DremioConfig parses the dremio section.
func (c *Config) DremioConfig() (dremiotk.Config, error) {
	return dremiotk.ParseConfig(c.Dremio)
}

// Validate validates the configuration. Connection profile problems are
// returned as *dremio.ConfigurationError so callers can classify them.
func (c *Config) Validate() error {
	var errs []string

	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		errs = append(errs, fmt.Sprintf("server.transport %q is not one of stdio, http", c.Server.Transport))
	}

	for i, k := range c.Server.APIKeys {
		if k.Name == "" || k.Hash == "" {
			errs = append(errs, fmt.Sprintf("server.api_keys[%d] requires name and hash", i))
		}
	}

	if c.AuditEnabled() && c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required when audit is enabled")
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must not be negative")
	}
	if c.Audit.CleanupInterval < 0 {
		errs = append(errs, "audit.cleanup_interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	dc, err := c.DremioConfig()
	if err != nil {
		return fmt.Errorf("dremio: %w", err)
	}
	if err := dc.Profile().Validate(); err != nil {
		return fmt.Errorf("dremio: %w", err)
	}
	return nil
}

// ErrNoDremioConfig is returned when neither a config file nor DREMIO_*
// variables describe a connection.
var ErrNoDremioConfig = errors.New("no dremio connection configured: set DREMIO_BASE_URL and DREMIO_TOKEN or pass --config")
