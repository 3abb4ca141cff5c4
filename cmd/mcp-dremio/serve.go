package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	mcpserver "github.com/txn2/mcp-dremio/internal/server"
	"github.com/txn2/mcp-dremio/pkg/platform"
)

const readHeaderTimeout = 10 * time.Second

type serveOptions struct {
	transport string
	address   string
}

func newServeCommand(rootOpts *rootOptions) *cobra.Command {
	so := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run the MCP server over stdio (default) or streamable HTTP.

With --transport http the MCP endpoint is served at /mcp, with liveness
at /healthz and readiness at /readyz.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, rootOpts, so)
		},
	}

	cmd.Flags().StringVar(&so.transport, "transport", platform.TransportStdio, "transport type (stdio|http)")
	cmd.Flags().StringVar(&so.address, "address", "", "listen address for the http transport (default from config, :8080)")

	return cmd
}

func runServe(cmd *cobra.Command, rootOpts *rootOptions, so *serveOptions) error {
	cfg, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd.Flags(), cfg, so)

	p, err := rootOpts.newPlatform(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			rootOpts.logger.Warn("shutdown finished with errors", "error", err)
		}
	}()

	ctx := cmd.Context()
	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("starting platform: %w", err)
	}

	rootOpts.logger.Info("serving", "transport", cfg.Server.Transport, "version", cfg.Server.Version)

	switch cfg.Server.Transport {
	case platform.TransportHTTP:
		return serveHTTP(ctx, cfg.Server.Address, mcpserver.NewHTTPHandler(p), cfg.Server.ShutdownTimeout, rootOpts.logger)
	default:
		if err := p.MCPServer().Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}
}

// applyServeFlags lets explicitly set flags override the configuration.
func applyServeFlags(flags *pflag.FlagSet, cfg *platform.Config, so *serveOptions) {
	if flags.Changed("transport") {
		cfg.Server.Transport = so.transport
	}
	if flags.Changed("address") {
		cfg.Server.Address = so.address
	}
}

// serveHTTP serves handler until ctx is done, then shuts down gracefully.
func serveHTTP(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("http server stopped")
	return nil
}
