// Package config provides configuration loading for mcpd.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Transport selection values.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportBoth  = "both"
)

// Config is the full mcpd configuration.
//
// Values load from an optional YAML file overridden by MCP_* environment
// variables: MCP_PORT, MCP_HOST, MCP_TRANSPORT, MCP_REQUEST_TIMEOUT_MS,
// MCP_SHUTDOWN_TIMEOUT_MS, MCP_PROGRESS_INTERVAL_MS, MCP_PAGE_SIZE,
// MCP_LOG_LEVEL, MCP_RESOURCE_URL, MCP_AUTH_SERVERS, MCP_REQUIRE_AUTH.
type Config struct {
	Host               string `koanf:"host"`
	Port               int    `koanf:"port"`
	Transport          string `koanf:"transport"`
	RequestTimeoutMS   int    `koanf:"request_timeout_ms"`
	ShutdownTimeoutMS  int    `koanf:"shutdown_timeout_ms"`
	ProgressIntervalMS int    `koanf:"progress_interval_ms"`
	PageSize           int    `koanf:"page_size"`
	LogLevel           string `koanf:"log_level"`
	ResourceURL        string `koanf:"resource_url"`

	// AuthServers is a comma-separated list of authorization server issuer
	// URLs for the protected-resource metadata document.
	AuthServers string `koanf:"auth_servers"`

	// RequireAuth gates the /mcp endpoints behind a bearer token.
	RequireAuth bool `koanf:"require_auth"`

	// SessionTTLMinutes bounds how long an idle HTTP session survives.
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`
}

// RequestTimeout returns the tool execution timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns the graceful drain budget.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}

// ProgressInterval returns the progress notification throttle.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMS) * time.Millisecond
}

// SessionTTL returns the idle session expiry window.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// AuthServerList splits the comma-separated auth server setting, dropping
// empty entries.
func (c *Config) AuthServerList() []string {
	if c.AuthServers == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(c.AuthServers, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP, TransportBoth:
	default:
		return fmt.Errorf("invalid transport %q: must be stdio, http, or both", c.Transport)
	}

	if c.Transport != TransportStdio {
		if c.Port < 1 || c.Port > 65535 {
			return fmt.Errorf("invalid port %d: must be in [1, 65535]", c.Port)
		}
	}
	if c.RequestTimeoutMS <= 0 {
		return fmt.Errorf("request_timeout_ms must be positive, got %d", c.RequestTimeoutMS)
	}
	if c.ShutdownTimeoutMS <= 0 {
		return fmt.Errorf("shutdown_timeout_ms must be positive, got %d", c.ShutdownTimeoutMS)
	}
	if c.ProgressIntervalMS <= 0 {
		return fmt.Errorf("progress_interval_ms must be positive, got %d", c.ProgressIntervalMS)
	}
	if c.PageSize < 1 || c.PageSize > 200 {
		return fmt.Errorf("page_size must be in [1, 200], got %d", c.PageSize)
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("session_ttl_minutes must be positive, got %d", c.SessionTTLMinutes)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q: must be debug, info, warn, or error", c.LogLevel)
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	if cfg.RequestTimeoutMS == 0 {
		cfg.RequestTimeoutMS = 30_000
	}
	if cfg.ShutdownTimeoutMS == 0 {
		cfg.ShutdownTimeoutMS = 30_000
	}
	if cfg.ProgressIntervalMS == 0 {
		cfg.ProgressIntervalMS = 100
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = 50
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.ResourceURL == "" {
		cfg.ResourceURL = fmt.Sprintf("http://%s:%d/mcp", cfg.Host, cfg.Port)
	}
	if cfg.SessionTTLMinutes == 0 {
		cfg.SessionTTLMinutes = 30
	}
}
