package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.ProgressInterval())
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "http://localhost:9090/mcp", cfg.ResourceURL)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL())
	assert.Nil(t, cfg.AuthServerList())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MCP_PORT", "3001")
	t.Setenv("MCP_HOST", "0.0.0.0")
	t.Setenv("MCP_TRANSPORT", "http")
	t.Setenv("MCP_REQUEST_TIMEOUT_MS", "5000")
	t.Setenv("MCP_PROGRESS_INTERVAL_MS", "250")
	t.Setenv("MCP_PAGE_SIZE", "25")
	t.Setenv("MCP_LOG_LEVEL", "debug")
	t.Setenv("MCP_AUTH_SERVERS", "https://auth.example.com, https://backup.example.com")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, "0.0.0.0:3001", cfg.Addr())
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.ProgressInterval())
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t,
		[]string{"https://auth.example.com", "https://backup.example.com"},
		cfg.AuthServerList())
}

func TestLoadFromFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 4000\nlog_level: warn\n"), 0600))

	t.Setenv("MCP_LOG_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port, "file value applies")
	assert.Equal(t, "error", cfg.LogLevel, "environment beats file")
}

func TestLoadRejectsInsecureFilePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 4000\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permissions")
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	assert.NoError(t, base().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad transport", func(c *Config) { c.Transport = "tcp" }},
		{"bad port", func(c *Config) { c.Transport = TransportHTTP; c.Port = 0 }},
		{"port too high", func(c *Config) { c.Transport = TransportHTTP; c.Port = 70000 }},
		{"zero request timeout", func(c *Config) { c.RequestTimeoutMS = -1 }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeoutMS = -5 }},
		{"page size too large", func(c *Config) { c.PageSize = 500 }},
		{"page size zero", func(c *Config) { c.PageSize = -1 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestStdioTransportSkipsPortValidation(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	cfg.Transport = TransportStdio
	// Port is irrelevant without an HTTP listener.
	cfg.Port = -1
	assert.NoError(t, cfg.Validate())
}
