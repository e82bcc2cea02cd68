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
	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "https://cloud.mongodb.com/", cfg.APIBaseURL)
	assert.Equal(t, TelemetryEnabled, cfg.Telemetry)
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, 3*time.Second, cfg.DeviceIDTimeout)
	assert.Equal(t, 12*time.Hour, cfg.TemporaryUserLifetime)
	assert.Equal(t, 15*time.Second, cfg.TelemetryTimeout)
	assert.Empty(t, cfg.DisabledTools)
	assert.False(t, cfg.HasAPICredentials())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("MDB_MCP_API_CLIENT_ID", "id")
	t.Setenv("MDB_MCP_API_CLIENT_SECRET", " secret ")
	t.Setenv("MDB_MCP_API_BASE_URL", "https://cloud-dev.mongodb.com")
	t.Setenv("MDB_MCP_DISABLED_TOOLS", "atlas, delete ,count")
	t.Setenv("MDB_MCP_READ_ONLY", "true")
	t.Setenv("MDB_MCP_TELEMETRY", "Disabled")
	t.Setenv("MDB_MCP_DEVICE_ID_TIMEOUT", "250ms")
	t.Setenv("MDB_MCP_TELEMETRY_TIMEOUT", "2s")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.True(t, cfg.HasAPICredentials())
	assert.Equal(t, "secret", cfg.APIClientSecret)
	assert.Equal(t, "https://cloud-dev.mongodb.com/", cfg.APIBaseURL)
	assert.Equal(t, []string{"atlas", "delete", "count"}, cfg.DisabledTools)
	assert.True(t, cfg.ReadOnly)
	assert.Equal(t, TelemetryDisabled, cfg.Telemetry)
	assert.Equal(t, 250*time.Millisecond, cfg.DeviceIDTimeout)
	assert.Equal(t, 2*time.Second, cfg.TelemetryTimeout)
	assert.False(t, cfg.TelemetryEnabled())
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mcp.yaml")
	content := "transport: http\nhttp_port: 8123\nconnection_string: mongodb://localhost:27017\ndisabled_tools:\n  - create\n  - atlas-connect-cluster\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := NewViper()
	v.Set(KeyConfigFile, path)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, "127.0.0.1:8123", cfg.HTTPAddr())
	assert.Equal(t, "mongodb://localhost:27017", cfg.ConnectionString)
	assert.Equal(t, []string{"create", "atlas-connect-cluster"}, cfg.DisabledTools)
}

func TestLoadMissingConfigFile(t *testing.T) {
	v := NewViper()
	v.Set(KeyConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load(v)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"bad transport", func(c *Config) { c.Transport = "sse" }, "invalid transport"},
		{"bad telemetry", func(c *Config) { c.Telemetry = "maybe" }, "invalid telemetry"},
		{"bad port", func(c *Config) { c.Transport = TransportHTTP; c.HTTPPort = 70000 }, "invalid http port"},
		{"port ignored for stdio", func(c *Config) { c.HTTPPort = 0 }, ""},
		{"bad base url", func(c *Config) { c.APIBaseURL = "not a url" }, "invalid api base url"},
		{"half credentials", func(c *Config) { c.APIClientID = "id" }, "must be set together"},
		{"zero device timeout", func(c *Config) { c.DeviceIDTimeout = 0 }, "device id timeout"},
		{"zero user lifetime", func(c *Config) { c.TemporaryUserLifetime = 0 }, "temporary user lifetime"},
		{"zero connect timeout", func(c *Config) { c.ConnectTimeout = 0 }, "connect timeout"},
		{"zero telemetry timeout", func(c *Config) { c.TelemetryTimeout = 0 }, "telemetry timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestTelemetryEnabledHonoursDoNotTrack(t *testing.T) {
	cfg := Default()

	for _, v := range []string{"1", "true", "YES"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("DO_NOT_TRACK", v)
			assert.False(t, cfg.TelemetryEnabled())
		})
	}

	t.Setenv("DO_NOT_TRACK", "0")
	assert.True(t, cfg.TelemetryEnabled())

	cfg.Telemetry = TelemetryDisabled
	assert.False(t, cfg.TelemetryEnabled())

	var nilCfg *Config
	assert.False(t, nilCfg.TelemetryEnabled())
}

func TestLoadEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MDB_MCP_LOG_LEVEL=debug\nMDB_MCP_HTTP_HOST=0.0.0.0\n"), 0o600))
	t.Setenv("MDB_MCP_LOG_LEVEL", "warn")
	t.Setenv("MDB_MCP_HTTP_HOST", "")
	require.NoError(t, os.Unsetenv("MDB_MCP_HTTP_HOST"))

	LoadEnvFile(path)
	t.Cleanup(func() { _ = os.Unsetenv("MDB_MCP_HTTP_HOST") })

	assert.Equal(t, "warn", os.Getenv("MDB_MCP_LOG_LEVEL"))
	assert.Equal(t, "0.0.0.0", os.Getenv("MDB_MCP_HTTP_HOST"))
}
