package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	mcpserver "github.com/txn2/mcp-dremio/internal/server"
	"github.com/txn2/mcp-dremio/pkg/platform"
)

const defaultEnvFile = ".env"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string // "text" | "json"

	logger *slog.Logger

	// platformOpts are appended when a command creates the platform.
	platformOpts []platform.Option
}

// newRootCommand creates the root command. extra options are passed to every
// platform the commands create.
func newRootCommand(extra ...platform.Option) *cobra.Command {
	opts := &rootOptions{platformOpts: extra}

	cmd := &cobra.Command{
		Use:           "mcp-dremio",
		Short:         "MCP server for Dremio Cloud and Dremio Software",
		Long:          "Runs SQL on Dremio through its job API and exposes it to MCP clients as tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), opts.logLevel, opts.logFormat)
			if err != nil {
				return err
			}
			opts.logger = logger
			slog.SetDefault(logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to configuration file (default: DREMIO_* environment variables)")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file loaded before reading the configuration")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text|json)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newPingCommand(opts))
	cmd.AddCommand(newAuditCommand(opts))
	cmd.AddCommand(newHashKeyCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadEnvFile loads a dotenv file without overriding variables already set.
// A missing default file is not an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading env file %s: %w", path, err)
}

// newLogger builds a structured logger writing to w.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be one of text, json", format)
	}
}

// loadConfig reads the configuration named by the global flags.
func (o *rootOptions) loadConfig() (*platform.Config, error) {
	cfg, err := mcpserver.LoadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newPlatform creates a platform from cfg with the global options applied.
func (o *rootOptions) newPlatform(cfg *platform.Config) (*platform.Platform, error) {
	opts := append([]platform.Option{platform.WithLogger(o.logger)}, o.platformOpts...)
	return mcpserver.New(cfg, opts...)
}

// openPlatform loads the configuration and creates a platform.
func (o *rootOptions) openPlatform() (*platform.Platform, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return o.newPlatform(cfg)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mcp-dremio version %s\n", mcpserver.Version)
			return err
		},
	}
}
