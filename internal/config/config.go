// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/botforge-gateway/config.toml",
	"configs/config.toml",
}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
}

// Config is the top-level application configuration. It is loaded once
// at start-up and treated as read-only afterwards.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Compute ComputeConfig `toml:"compute"`
	Auth    AuthConfig    `toml:"auth"`
	Upload  UploadConfig  `toml:"upload"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8080); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// ComputeConfig holds connection settings for the internal compute service.
type ComputeConfig struct {
	BaseURL               string `toml:"base_url"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	HeaderTimeoutSeconds  int    `toml:"header_timeout_seconds"`
	IdleConnections       int    `toml:"idle_connections"`
	ResponseMaxBytes      int64  `toml:"response_max_bytes"`
}

// AuthConfig holds the account-service endpoint used to resolve caller
// credentials. Token issuance and verification live in that service, not here.
type AuthConfig struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// UploadConfig bounds multipart document uploads.
type UploadConfig struct {
	MaxParts     int   `toml:"max_parts"`
	MaxPartBytes int64 `toml:"max_part_bytes"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/botforge-gateway/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

func (c *Config) validate() error {
	// Service origins: required, must parse, http(s) only.
	if c.Compute.BaseURL == "" {
		return fmt.Errorf("compute.base_url is required")
	}
	if err := validateOrigin("compute.base_url", c.Compute.BaseURL); err != nil {
		return err
	}
	if c.Auth.BaseURL == "" {
		return fmt.Errorf("auth.base_url is required")
	}
	if err := validateOrigin("auth.base_url", c.Auth.BaseURL); err != nil {
		return err
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Compute.ConnectTimeoutSeconds < 0 {
		return fmt.Errorf("compute.connect_timeout_seconds must be non-negative; got %d", c.Compute.ConnectTimeoutSeconds)
	}
	if c.Compute.HeaderTimeoutSeconds < 0 {
		return fmt.Errorf("compute.header_timeout_seconds must be non-negative; got %d", c.Compute.HeaderTimeoutSeconds)
	}
	if c.Compute.IdleConnections < 0 {
		return fmt.Errorf("compute.idle_connections must be non-negative; got %d", c.Compute.IdleConnections)
	}
	if c.Compute.ResponseMaxBytes < 0 {
		return fmt.Errorf("compute.response_max_bytes must be non-negative; got %d", c.Compute.ResponseMaxBytes)
	}
	if c.Auth.TimeoutSeconds < 0 {
		return fmt.Errorf("auth.timeout_seconds must be non-negative; got %d", c.Auth.TimeoutSeconds)
	}
	if c.Upload.MaxParts < 0 {
		return fmt.Errorf("upload.max_parts must be non-negative; got %d", c.Upload.MaxParts)
	}
	if c.Upload.MaxPartBytes < 0 {
		return fmt.Errorf("upload.max_part_bytes must be non-negative; got %d", c.Upload.MaxPartBytes)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api/v1", "/healthz", "/gateway/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// validateOrigin checks that a configured base URL is a usable http(s) origin.
func validateOrigin(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host; got %q", field, raw)
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8080).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 50 * 1024 * 1024 // 50 MB; must cover document uploads
	}
	if c.Compute.ConnectTimeoutSeconds == 0 {
		c.Compute.ConnectTimeoutSeconds = 10
	}
	if c.Compute.HeaderTimeoutSeconds == 0 {
		c.Compute.HeaderTimeoutSeconds = 60
	}
	if c.Compute.IdleConnections == 0 {
		c.Compute.IdleConnections = 100
	}
	if c.Compute.ResponseMaxBytes == 0 {
		c.Compute.ResponseMaxBytes = 10 * 1024 * 1024 // 10 MB; JSON responses only
	}
	if c.Auth.TimeoutSeconds == 0 {
		c.Auth.TimeoutSeconds = 10
	}
	if c.Upload.MaxParts == 0 {
		c.Upload.MaxParts = 10
	}
	if c.Upload.MaxPartBytes == 0 {
		c.Upload.MaxPartBytes = 20 * 1024 * 1024 // 20 MB per file
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
