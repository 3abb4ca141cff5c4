package dremio

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	dremioclient "github.com/txn2/mcp-dremio/pkg/dremio"
)

// ParseConfig parses a Dremio toolkit configuration from a map, as decoded
// from the "dremio" section of the YAML config.
func ParseConfig(cfg map[string]any) (Config, error) {
	c := Config{
		PollInterval:    dremioclient.DefaultPollInterval,
		MaxPollAttempts: dremioclient.DefaultMaxPollAttempts,
		RequestTimeout:  defaultRequestTimeout,
	}

	// Connection profile
	c.Type = getString(cfg, "type")
	c.BaseURL = getString(cfg, "base_url")
	c.ProjectID = getString(cfg, "project_id")
	c.Token = getString(cfg, "token")
	c.SkipTLSVerify = getBool(cfg, "skip_tls_verify")
	c.ConnectionName = getString(cfg, "connection_name")

	// Polling and fetching
	c.MaxPollAttempts = getInt(cfg, "max_poll_attempts", c.MaxPollAttempts)
	c.PageSize = getInt(cfg, "page_size", 0)

	var err error
	if c.PollInterval, err = getDurationDefault(cfg, "poll_interval", c.PollInterval); err != nil {
		return c, fmt.Errorf("invalid poll_interval: %w", err)
	}
	if c.MaxPollDuration, err = getDurationDefault(cfg, "max_poll_duration", 0); err != nil {
		return c, fmt.Errorf("invalid max_poll_duration: %w", err)
	}
	if c.RequestTimeout, err = getDurationDefault(cfg, "request_timeout", c.RequestTimeout); err != nil {
		return c, fmt.Errorf("invalid request_timeout: %w", err)
	}

	// Tool behavior
	c.ReadOnly = getBool(cfg, "read_only")
	c.ContinueOnFail = getBool(cfg, "continue_on_fail")
	c.Descriptions = getStringMap(cfg, "descriptions")

	if c.PollInterval < 0 || c.MaxPollDuration < 0 || c.RequestTimeout < 0 {
		return c, fmt.Errorf("durations must not be negative")
	}
	if c.PageSize < 0 || c.PageSize > dremioclient.MaxPageSize {
		return c, fmt.Errorf("page_size must be between 0 and %d", dremioclient.MaxPageSize)
	}

	return c, nil
}

// Profile returns the connection profile described by the configuration.
func (c Config) Profile() dremioclient.Profile {
	return dremioclient.Profile{
		Type:          dremioclient.DeploymentType(strings.ToLower(strings.TrimSpace(c.Type))),
		BaseURL:       c.BaseURL,
		ProjectID:     c.ProjectID,
		Token:         c.Token,
		SkipTLSVerify: c.SkipTLSVerify,
	}
}

// PollPolicy returns the polling bounds described by the configuration.
func (c Config) PollPolicy() dremioclient.PollPolicy {
	return dremioclient.PollPolicy{
		Interval:    c.PollInterval,
		MaxAttempts: c.MaxPollAttempts,
		MaxElapsed:  c.MaxPollDuration,
	}
}

// ClientOptions returns the client options described by the configuration.
func (c Config) ClientOptions(logger *slog.Logger) []dremioclient.Option {
	return []dremioclient.Option{
		dremioclient.WithPollPolicy(c.PollPolicy()),
		dremioclient.WithPageSize(c.PageSize),
		dremioclient.WithTransport(dremioclient.NewHTTPTransport(c.RequestTimeout)),
		dremioclient.WithLogger(logger),
	}
}

// getString extracts a string value from a config map.
func getString(cfg map[string]any, key string) string {
	if v, ok := cfg[key].(string); ok {
		return v
	}
	return ""
}

// getInt extracts an int value from a config map with a default.
func getInt(cfg map[string]any, key string, defaultVal int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

// getBool extracts a bool value from a config map. String forms such as
// "true" come from environment expansion.
func getBool(cfg map[string]any, key string) bool {
	switch v := cfg[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1" || v == "yes"
	}
	return false
}

// getStringMap extracts a map[string]string value from a config map.
func getStringMap(cfg map[string]any, key string) map[string]string {
	raw, ok := cfg[key].(map[string]any)
	if !ok {
		return nil
	}
	result := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}
	return result
}

// getDurationDefault extracts a duration from a config map. Strings are parsed
// with time.ParseDuration; bare numbers are seconds.
func getDurationDefault(cfg map[string]any, key string, defaultVal time.Duration) (time.Duration, error) {
	switch v := cfg[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parsing duration %q: %w", v, err)
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Second, nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	}
	return defaultVal, nil
}
