// Package dremio implements the Dremio SQL job protocol: submit a statement,
// poll the job until it reaches a terminal state, then fetch its rows. Both
// Dremio Cloud (project scoped, /v0 API) and Dremio Software (self-hosted,
// /api/v3) deployments are supported through one Client.
package dremio

import (
	"log/slog"
	"net/url"
	"strings"
)

// DeploymentType selects the URL shape and project semantics of a deployment.
type DeploymentType string

const (
	// Cloud is the multi-tenant, project-scoped Dremio Cloud offering.
	Cloud DeploymentType = "cloud"

	// Software is a self-hosted Dremio deployment.
	Software DeploymentType = "software"
)

// ParseDeploymentType parses a deployment type name case-insensitively.
func ParseDeploymentType(s string) (DeploymentType, error) {
	switch DeploymentType(strings.ToLower(strings.TrimSpace(s))) {
	case Cloud:
		return Cloud, nil
	case Software:
		return Software, nil
	default:
		return "", &ConfigurationError{Field: "type", Reason: "must be one of cloud, software; got " + quote(s)}
	}
}

// Profile holds everything needed to talk to one Dremio deployment.
// It is read-only for the lifetime of a Client.
type Profile struct {
	Type          DeploymentType
	BaseURL       string
	ProjectID     string // required for Cloud, ignored for Software
	Token         string
	SkipTLSVerify bool
}

// Validate checks every field of the profile, including the token.
func (p Profile) Validate() error {
	if err := p.validateEndpointFields(); err != nil {
		return err
	}
	if strings.TrimSpace(p.Token) == "" {
		return &ConfigurationError{Field: "token", Reason: "access token is required"}
	}
	return nil
}

// validateEndpointFields checks the fields the endpoint resolver depends on.
func (p Profile) validateEndpointFields() error {
	switch p.Type {
	case Cloud, Software:
	default:
		return &ConfigurationError{Field: "type", Reason: "must be one of cloud, software; got " + quote(string(p.Type))}
	}

	base := trimBaseURL(p.BaseURL)
	if base == "" {
		return &ConfigurationError{Field: "base_url", Reason: "base URL is required"}
	}
	u, err := url.Parse(base)
	if err != nil {
		return &ConfigurationError{Field: "base_url", Reason: "invalid URL: " + err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigurationError{Field: "base_url", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ConfigurationError{Field: "base_url", Reason: "host is required"}
	}

	if p.Type == Cloud && strings.TrimSpace(p.ProjectID) == "" {
		return &ConfigurationError{Field: "project_id", Reason: "project ID is required for Dremio Cloud"}
	}
	return nil
}

// LogValue keeps the access token out of structured logs.
func (p Profile) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("type", string(p.Type)),
		slog.String("base_url", p.BaseURL),
		slog.Bool("skip_tls_verify", p.SkipTLSVerify),
	}
	if p.Type == Cloud {
		attrs = append(attrs, slog.String("project_id", p.ProjectID))
	}
	return slog.GroupValue(attrs...)
}

// trimBaseURL removes surrounding whitespace and every trailing slash.
func trimBaseURL(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "/")
}

func quote(s string) string {
	return `"` + s + `"`
}
