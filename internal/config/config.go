// Package config loads server configuration from defaults, an optional config file,
// MDB_MCP_* environment variables and command-line flags using Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/mongodb-labs/atlas-mcp-server/internal/utils"
)

// EnvPrefix is prepended to every configuration key when read from the environment.
const EnvPrefix = "MDB_MCP"

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"

	TelemetryEnabled  = "enabled"
	TelemetryDisabled = "disabled"
)

// Keys shared between viper, the environment and cobra flags.
const (
	KeyConfigFile            = "config"
	KeyAPIBaseURL            = "api_base_url"
	KeyAPIClientID           = "api_client_id"
	KeyAPIClientSecret       = "api_client_secret"
	KeyConnectionString      = "connection_string"
	KeyTelemetry             = "telemetry"
	KeyDisabledTools         = "disabled_tools"
	KeyReadOnly              = "read_only"
	KeyTransport             = "transport"
	KeyHTTPHost              = "http_host"
	KeyHTTPPort              = "http_port"
	KeyLogPath               = "log_path"
	KeyLogLevel              = "log_level"
	KeyLogFormat             = "log_format"
	KeyMetricsAddr           = "metrics_addr"
	KeyDeviceIDTimeout       = "device_id_timeout"
	KeyTemporaryUserLifetime = "temporary_user_lifetime"
	KeyConnectTimeout        = "connect_timeout"
	KeyTelemetryTimeout      = "telemetry_timeout"
)

// Config holds the server configuration.
type Config struct {
	// APIBaseURL is the management API root, always ending in "/".
	APIBaseURL       string `mapstructure:"api_base_url"`
	APIClientID      string `mapstructure:"api_client_id"`
	APIClientSecret  string `mapstructure:"api_client_secret"`
	ConnectionString string `mapstructure:"connection_string"`

	// Telemetry is "enabled" or "disabled". DO_NOT_TRACK overrides it at call time.
	Telemetry     string   `mapstructure:"telemetry"`
	DisabledTools []string `mapstructure:"disabled_tools"`
	ReadOnly      bool     `mapstructure:"read_only"`

	Transport string `mapstructure:"transport"`
	HTTPHost  string `mapstructure:"http_host"`
	HTTPPort  int    `mapstructure:"http_port"`

	LogPath     string `mapstructure:"log_path"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	DeviceIDTimeout       time.Duration `mapstructure:"device_id_timeout"`
	TemporaryUserLifetime time.Duration `mapstructure:"temporary_user_lifetime"`
	ConnectTimeout        time.Duration `mapstructure:"connect_timeout"`
	// TelemetryTimeout bounds each tool-call telemetry emission.
	TelemetryTimeout time.Duration `mapstructure:"telemetry_timeout"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		APIBaseURL:            "https://cloud.mongodb.com/",
		Telemetry:             TelemetryEnabled,
		Transport:             TransportStdio,
		HTTPHost:              "127.0.0.1",
		HTTPPort:              3000,
		LogLevel:              "info",
		LogFormat:             "auto",
		DeviceIDTimeout:       3 * time.Second,
		TemporaryUserLifetime: 12 * time.Hour,
		ConnectTimeout:        10 * time.Second,
		TelemetryTimeout:      15 * time.Second,
	}
}

// NewViper returns a viper instance carrying defaults and environment bindings.
// Callers bind command-line flags on top before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	d := Default()

	v.SetDefault(KeyConfigFile, "")
	v.SetDefault(KeyAPIBaseURL, d.APIBaseURL)
	v.SetDefault(KeyAPIClientID, "")
	v.SetDefault(KeyAPIClientSecret, "")
	v.SetDefault(KeyConnectionString, "")
	v.SetDefault(KeyTelemetry, d.Telemetry)
	v.SetDefault(KeyDisabledTools, []string{})
	v.SetDefault(KeyReadOnly, false)
	v.SetDefault(KeyTransport, d.Transport)
	v.SetDefault(KeyHTTPHost, d.HTTPHost)
	v.SetDefault(KeyHTTPPort, d.HTTPPort)
	v.SetDefault(KeyLogPath, "")
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyDeviceIDTimeout, d.DeviceIDTimeout)
	v.SetDefault(KeyTemporaryUserLifetime, d.TemporaryUserLifetime)
	v.SetDefault(KeyConnectTimeout, d.ConnectTimeout)
	v.SetDefault(KeyTelemetryTimeout, d.TelemetryTimeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// LoadEnvFile loads a .env file from the working directory if one exists.
// Variables already present in the environment are not overridden.
func LoadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Warn().Err(err).Str("file", path).Msg("Failed to load .env file")
		return
	}
	log.Debug().Str("file", path).Msg("Loaded .env file")
}

// Load reads the optional config file named by the "config" key, then decodes and validates
// the merged configuration.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	if file := strings.TrimSpace(v.GetString(KeyConfigFile)); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
		log.Debug().Str("file", file).Msg("Loaded configuration file")
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.APIBaseURL = strings.TrimSpace(c.APIBaseURL)
	if c.APIBaseURL != "" && !strings.HasSuffix(c.APIBaseURL, "/") {
		c.APIBaseURL += "/"
	}
	c.APIClientID = strings.TrimSpace(c.APIClientID)
	c.APIClientSecret = strings.TrimSpace(c.APIClientSecret)
	c.ConnectionString = strings.TrimSpace(c.ConnectionString)
	c.Telemetry = strings.ToLower(strings.TrimSpace(c.Telemetry))
	c.Transport = strings.ToLower(strings.TrimSpace(c.Transport))

	var tools []string
	for _, entry := range c.DisabledTools {
		tools = append(tools, utils.SplitList(entry)...)
	}
	c.DisabledTools = tools
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("config: invalid transport %q (want %q or %q)", c.Transport, TransportStdio, TransportHTTP)
	}

	switch c.Telemetry {
	case TelemetryEnabled, TelemetryDisabled:
	default:
		return fmt.Errorf("config: invalid telemetry setting %q (want %q or %q)", c.Telemetry, TelemetryEnabled, TelemetryDisabled)
	}

	if c.Transport == TransportHTTP && (c.HTTPPort <= 0 || c.HTTPPort > 65535) {
		return fmt.Errorf("config: invalid http port: %d", c.HTTPPort)
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid api base url %q", c.APIBaseURL)
	}

	if (c.APIClientID == "") != (c.APIClientSecret == "") {
		return errors.New("config: api client id and api client secret must be set together")
	}

	if c.DeviceIDTimeout <= 0 {
		return fmt.Errorf("config: device id timeout must be positive, got %s", c.DeviceIDTimeout)
	}
	if c.TemporaryUserLifetime <= 0 {
		return fmt.Errorf("config: temporary user lifetime must be positive, got %s", c.TemporaryUserLifetime)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("config: connect timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.TelemetryTimeout <= 0 {
		return fmt.Errorf("config: telemetry timeout must be positive, got %s", c.TelemetryTimeout)
	}
	return nil
}

// HasAPICredentials reports whether management API credentials are configured.
func (c *Config) HasAPICredentials() bool {
	return c != nil && c.APIClientID != "" && c.APIClientSecret != ""
}

// TelemetryEnabled reports whether telemetry should be emitted. The DO_NOT_TRACK
// convention is read on every call so runtime changes are honoured.
func (c *Config) TelemetryEnabled() bool {
	if c == nil || c.Telemetry == TelemetryDisabled {
		return false
	}
	return !doNotTrack()
}

func doNotTrack() bool {
	switch strings.ToLower(utils.GetenvTrim("DO_NOT_TRACK")) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// HTTPAddr returns the listen address for the streamable HTTP transport.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPHost, c.HTTPPort)
}
