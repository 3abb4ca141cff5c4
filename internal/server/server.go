// Package server provides a factory for creating the MCP Dremio server.
package server

import (
	"fmt"
	"net/http"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-dremio/pkg/platform"
)

// Version is set at build time.
var Version = "dev"

// HTTP routes served by NewHTTPHandler.
const (
	RouteMCP       = "/mcp"
	RouteLiveness  = "/healthz"
	RouteReadiness = "/readyz"
)

// New creates a platform from cfg. The build version is used when the
// configuration does not name one.
func New(cfg *platform.Config, opts ...platform.Option) (*platform.Platform, error) {
	if cfg.Server.Version == "" {
		cfg.Server.Version = Version
	}
	p, err := platform.New(append([]platform.Option{platform.WithConfig(cfg)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating platform: %w", err)
	}
	return p, nil
}

// LoadConfig reads the config file at path, or builds one from DREMIO_*
// variables when path is empty. Set DREMIO_* variables override the file.
func LoadConfig(path string) (*platform.Config, error) {
	if path == "" {
		cfg := platform.ConfigFromEnv()
		if len(cfg.Dremio) == 0 {
			return nil, platform.ErrNoDremioConfig
		}
		return cfg, nil
	}

	cfg, err := platform.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	platform.ApplyEnv(cfg, os.Getenv)
	return cfg, nil
}

// NewWithConfig creates a platform from a config file, or from the
// environment when path is empty.
func NewWithConfig(path string, opts ...platform.Option) (*platform.Platform, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...)
}

// NewHTTPHandler mounts the streamable MCP handler and the health probes.
// The MCP route is gated by the configured API keys.
func NewHTTPHandler(p *platform.Platform) http.Handler {
	server := p.MCPServer()
	streamHandler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)

	mux := http.NewServeMux()
	mux.Handle(RouteMCP, p.KeyVerifier().Middleware()(streamHandler))
	mux.HandleFunc(RouteLiveness, p.Health().LivenessHandler())
	mux.HandleFunc(RouteReadiness, p.Health().ReadinessHandler())
	return mux
}
