package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// cliWithPath returns a CLI struct pointing at the given config file.
func cliWithPath(path string) *CLI {
	return &CLI{Config: path}
}

// minimalConfig is a valid config body with only the required keys.
const minimalConfig = `
[compute]
base_url = "http://compute.internal:9000"

[auth]
base_url = "http://accounts.internal:9100"
`

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[compute]
base_url = "http://compute.internal:9000"
connect_timeout_seconds = 5
header_timeout_seconds = 30
idle_connections = 50

[auth]
base_url = "http://accounts.internal:9100"
timeout_seconds = 5

[upload]
max_parts = 4
max_part_bytes = 1048576

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if cfg.Compute.ConnectTimeoutSeconds != 5 {
		t.Errorf("Compute.ConnectTimeoutSeconds = %d, want %d", cfg.Compute.ConnectTimeoutSeconds, 5)
	}
	if cfg.Compute.HeaderTimeoutSeconds != 30 {
		t.Errorf("Compute.HeaderTimeoutSeconds = %d, want %d", cfg.Compute.HeaderTimeoutSeconds, 30)
	}
	if cfg.Upload.MaxParts != 4 {
		t.Errorf("Upload.MaxParts = %d, want %d", cfg.Upload.MaxParts, 4)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Server.BodyMaxBytes != 50*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 50*1024*1024)
	}
	if cfg.Compute.ConnectTimeoutSeconds != 10 {
		t.Errorf("default Compute.ConnectTimeoutSeconds = %d, want %d", cfg.Compute.ConnectTimeoutSeconds, 10)
	}
	if cfg.Compute.HeaderTimeoutSeconds != 60 {
		t.Errorf("default Compute.HeaderTimeoutSeconds = %d, want %d", cfg.Compute.HeaderTimeoutSeconds, 60)
	}
	if cfg.Compute.ResponseMaxBytes != 10*1024*1024 {
		t.Errorf("default Compute.ResponseMaxBytes = %d, want %d", cfg.Compute.ResponseMaxBytes, 10*1024*1024)
	}
	if cfg.Upload.MaxParts != 10 {
		t.Errorf("default Upload.MaxParts = %d, want %d", cfg.Upload.MaxParts, 10)
	}
	if cfg.Upload.MaxPartBytes != 20*1024*1024 {
		t.Errorf("default Upload.MaxPartBytes = %d, want %d", cfg.Upload.MaxPartBytes, 20*1024*1024)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoad_MissingComputeBaseURL(t *testing.T) {
	path := writeConfig(t, `
[auth]
base_url = "http://accounts.internal:9100"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for missing compute.base_url, got nil")
	}
}

func TestLoad_MissingAuthBaseURL(t *testing.T) {
	path := writeConfig(t, `
[compute]
base_url = "http://compute.internal:9000"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for missing auth.base_url, got nil")
	}
}

func TestLoad_BadComputeScheme(t *testing.T) {
	path := writeConfig(t, `
[compute]
base_url = "ftp://compute.internal:9000"

[auth]
base_url = "http://accounts.internal:9100"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for non-http compute.base_url, got nil")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[log]
level = "verbose"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for invalid log level, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8080

[compute]
base_url = "http://compute.internal:9000"

[auth]
base_url = "http://accounts.internal:9100"

[log]
level = "info"
`)

	cli := &CLI{
		Config:   path,
		Host:     "127.0.0.1",
		Port:     9999,
		LogLevel: "debug",
	}

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want CLI override %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want CLI override %d", cfg.Server.Port, 9999)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want CLI override %q", cfg.Log.Level, "debug")
	}
}

func TestLoad_NegativePort(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[server]
port = -1
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for negative port, got nil")
	}
}

func TestLoad_NegativeUploadParts(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[upload]
max_parts = -3
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for negative upload.max_parts, got nil")
	}
}

func TestLoad_RateLimitConfig_Enabled(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[server.rate_limit]
enabled = true
requests_per_second = 25.5
`)

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Server.RateLimit.Enabled {
		t.Error("RateLimit.Enabled = false, want true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 25.5 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want %v", cfg.Server.RateLimit.RequestsPerSecond, 25.5)
	}
}

func TestLoad_RateLimitConfig_BadValue(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[server.rate_limit]
enabled = true
requests_per_second = 0
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for zero rate limit, got nil")
	}
}

func TestLoad_MetricsPathConflictsWithAPIRoute(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[metrics]
enabled = true
path = "/api/v1/metrics"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for metrics path under /api/v1, got nil")
	}
}

func TestLoad_MetricsDisabledSkipsPathValidation(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[metrics]
enabled = false
path = "no-leading-slash"
`)

	if _, err := Load(cliWithPath(path)); err != nil {
		t.Fatalf("Load() error = %v; path validation should be skipped when metrics disabled", err)
	}
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not meaningful on windows")
	}

	path := writeConfig(t, minimalConfig)
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permissions warning in log output, got: %s", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not meaningful on windows")
	}

	path := writeConfig(t, minimalConfig)
	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cliWithPath(path))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 config, got: %s", buf.String())
	}
}

func TestFindConfigInPaths_Found(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	got := findConfigInPaths([]string{"/nonexistent/a.toml", path})
	if got != path {
		t.Errorf("findConfigInPaths() = %q, want %q", got, path)
	}
}

func TestFindConfigInPaths_NotFound(t *testing.T) {
	got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"})
	if got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := sc.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:8080")
	}
}
