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

// writeConfig writes data to a config.toml in a fresh temp dir.
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

[server.cors]
allow_origins = ["https://issues.example"]

[oauth]
client_id = "Iv1.abc"
client_secret = "s3cret"

[upstream]
api_base_url = "https://api.github.example"
oauth_base_url = "https://github.example"
timeout_seconds = 60
idle_connections = 50
max_response_bytes = 2048

[log]
level = "DEBUG"
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
	if got := cfg.Server.CORS.AllowOrigins; len(got) != 1 || got[0] != "https://issues.example" {
		t.Errorf("Server.CORS.AllowOrigins = %v, want [https://issues.example]", got)
	}
	if cfg.OAuth.ClientID != "Iv1.abc" || cfg.OAuth.ClientSecret != "s3cret" {
		t.Errorf("OAuth = %+v, want client_id Iv1.abc and client_secret s3cret", cfg.OAuth)
	}
	if cfg.Upstream.APIBaseURL != "https://api.github.example" {
		t.Errorf("Upstream.APIBaseURL = %q", cfg.Upstream.APIBaseURL)
	}
	if cfg.Upstream.OAuthBaseURL != "https://github.example" {
		t.Errorf("Upstream.OAuthBaseURL = %q", cfg.Upstream.OAuthBaseURL)
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Upstream.MaxResponseBytes != 2048 {
		t.Errorf("Upstream.MaxResponseBytes = %d, want %d", cfg.Upstream.MaxResponseBytes, 2048)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v; a missing config file should fall back to defaults", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 5000)
	}
	if cfg.filePath != "" {
		t.Errorf("filePath = %q, want empty", cfg.filePath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, "")))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"Server.Host", cfg.Server.Host, "0.0.0.0"},
		{"Server.Port", cfg.Server.Port, 5000},
		{"Server.BodyMaxBytes", cfg.Server.BodyMaxBytes, int64(1024 * 1024)},
		{"Upstream.APIBaseURL", cfg.Upstream.APIBaseURL, "https://api.github.com"},
		{"Upstream.OAuthBaseURL", cfg.Upstream.OAuthBaseURL, "https://github.com"},
		{"Upstream.TimeoutSeconds", cfg.Upstream.TimeoutSeconds, 30},
		{"Upstream.IdleConnections", cfg.Upstream.IdleConnections, 100},
		{"Upstream.MaxResponseBytes", cfg.Upstream.MaxResponseBytes, int64(10 * 1024 * 1024)},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "json"},
		{"Metrics.Path", cfg.Metrics.Path, "/metrics"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if got := cfg.Server.CORS.AllowOrigins; len(got) != 1 || got[0] != "*" {
		t.Errorf("Server.CORS.AllowOrigins = %v, want [*]", got)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(cliWithPath("/nonexistent/config.toml"))
	if err == nil {
		t.Fatal("Load() expected error for an explicit path that does not exist, got nil")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	_, err := Load(cliWithPath(writeConfig(t, "[server\nport = ")))
	if err == nil {
		t.Fatal("Load() expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %q, want mention of parse", err)
	}
}

func TestLoad_PlaceholderSecret(t *testing.T) {
	path := writeConfig(t, `
[oauth]
client_id = "Iv1.abc"
client_secret = "YOUR_CLIENT_SECRET_HERE"
`)

	_, err := Load(cliWithPath(path))
	if err == nil {
		t.Fatal("Load() expected error for placeholder secret, got nil")
	}
	if !strings.Contains(err.Error(), "placeholder") {
		t.Errorf("error = %q, want mention of placeholder", err)
	}
}

func TestLoad_EmptyCredentialsAllowed(t *testing.T) {
	cfg, err := Load(cliWithPath(writeConfig(t, "[oauth]\n")))
	if err != nil {
		t.Fatalf("Load() error = %v; empty credentials only disable token exchange", err)
	}
	if cfg.OAuth.ClientID != "" || cfg.OAuth.ClientSecret != "" {
		t.Errorf("OAuth = %+v, want empty", cfg.OAuth)
	}
}

func TestLoad_InvalidLog(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"level", "[log]\nlevel = \"verbose\"\n", "level"},
		{"format", "[log]\nformat = \"xml\"\n", "format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[oauth]
client_id = "from-file"
client_secret = "file-secret"

[log]
level = "info"
`)

	cli := &CLI{
		Config:       path,
		Host:         "127.0.0.1",
		Port:         9999,
		ClientID:     "from-cli",
		ClientSecret: "cli-secret",
		LogLevel:     "warn",
	}
	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9999)
	}
	if cfg.OAuth.ClientID != "from-cli" {
		t.Errorf("OAuth.ClientID = %q, want %q", cfg.OAuth.ClientID, "from-cli")
	}
	if cfg.OAuth.ClientSecret != "cli-secret" {
		t.Errorf("OAuth.ClientSecret = %q, want %q", cfg.OAuth.ClientSecret, "cli-secret")
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}
}

func TestLoad_CLIPlaceholderSecretRejected(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := Load(&CLI{ClientSecret: placeholderSecret})
	if err == nil {
		t.Fatal("Load() expected error for placeholder secret passed on the command line, got nil")
	}
}

func TestLoad_UpstreamURLs(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"http api", "[upstream]\napi_base_url = \"http://api.github.com\"\n", "HTTPS"},
		{"http oauth", "[upstream]\noauth_base_url = \"http://github.com\"\n", "HTTPS"},
		{"not a url", "[upstream]\napi_base_url = \"not a url\"\n", "api_base_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_NegativeValues(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"port", "[server]\nport = -1\n", "port"},
		{"port too large", "[server]\nport = 70000\n", "port"},
		{"body_max_bytes", "[server]\nbody_max_bytes = -1\n", "body_max_bytes"},
		{"timeout_seconds", "[upstream]\ntimeout_seconds = -5\n", "timeout_seconds"},
		{"max_response_bytes", "[upstream]\nmax_response_bytes = -1\n", "max_response_bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLoad_EmptyCORSOrigin(t *testing.T) {
	_, err := Load(cliWithPath(writeConfig(t, "[server.cors]\nallow_origins = [\"https://a.example\", \"\"]\n")))
	if err == nil {
		t.Fatal("Load() expected error for empty origin, got nil")
	}
	if !strings.Contains(err.Error(), "allow_origins") {
		t.Errorf("error = %q, want mention of allow_origins", err)
	}
}

func TestLoad_RateLimitConfig(t *testing.T) {
	t.Run("enabled", func(t *testing.T) {
		cfg, err := Load(cliWithPath(writeConfig(t, "[server.rate_limit]\nenabled = true\nrequests_per_second = 25.5\n")))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !cfg.Server.RateLimit.Enabled {
			t.Error("RateLimit.Enabled = false, want true")
		}
		if cfg.Server.RateLimit.RequestsPerSecond != 25.5 {
			t.Errorf("RateLimit.RequestsPerSecond = %v, want 25.5", cfg.Server.RateLimit.RequestsPerSecond)
		}
	})

	t.Run("disabled ignores rate", func(t *testing.T) {
		_, err := Load(cliWithPath(writeConfig(t, "[server.rate_limit]\nenabled = false\nrequests_per_second = -1.0\n")))
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
	})

	for _, rps := range []string{"0.0", "-3.0"} {
		t.Run("bad rate "+rps, func(t *testing.T) {
			_, err := Load(cliWithPath(writeConfig(t, "[server.rate_limit]\nenabled = true\nrequests_per_second = "+rps+"\n")))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), "requests_per_second") {
				t.Errorf("error = %q, want mention of requests_per_second", err)
			}
		})
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
		want    string
	}{
		{"default", "[metrics]\nenabled = true\n", "", "/metrics"},
		{"custom", "[metrics]\nenabled = true\npath = \"/custom-metrics\"\n", "", "/custom-metrics"},
		{"no leading slash", "[metrics]\nenabled = true\npath = \"metrics\"\n", "must start with", ""},
		{"healthz", "[metrics]\nenabled = true\npath = \"/healthz\"\n", "conflicts", ""},
		{"proxy status", "[metrics]\nenabled = true\npath = \"/proxy/status\"\n", "conflicts", ""},
		{"under proxy status", "[metrics]\nenabled = true\npath = \"/proxy/status/m\"\n", "conflicts", ""},
		{"disabled skips validation", "[metrics]\nenabled = false\npath = \"bad-no-slash\"\n", "", "bad-no-slash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(cliWithPath(writeConfig(t, tt.data)))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() expected error containing %q, got nil", tt.wantErr)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Metrics.Path != tt.want {
				t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, tt.want)
			}
		})
	}
}

func TestLoadDotenv(t *testing.T) {
	const key = "ISSUES_PROXY_DOTENV_TEST"

	writeDotenv := func(t *testing.T) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte(key+"=from-dotenv\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}
	unset := func(t *testing.T) {
		t.Helper()
		_ = os.Unsetenv(key)
		t.Cleanup(func() { _ = os.Unsetenv(key) })
	}

	t.Run("loads file", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		unset(t)

		if err := LoadDotenv(writeDotenv(t)); err != nil {
			t.Fatalf("LoadDotenv() error = %v", err)
		}
		if got := os.Getenv(key); got != "from-dotenv" {
			t.Errorf("%s = %q, want %q", key, got, "from-dotenv")
		}
	})

	t.Run("does not override environment", func(t *testing.T) {
		t.Setenv("APP_ENV", "development")
		t.Setenv(key, "from-env")

		if err := LoadDotenv(writeDotenv(t)); err != nil {
			t.Fatalf("LoadDotenv() error = %v", err)
		}
		if got := os.Getenv(key); got != "from-env" {
			t.Errorf("%s = %q, want %q", key, got, "from-env")
		}
	})

	t.Run("skipped in production", func(t *testing.T) {
		t.Setenv("APP_ENV", "Production")
		unset(t)

		if err := LoadDotenv(writeDotenv(t)); err != nil {
			t.Fatalf("LoadDotenv() error = %v", err)
		}
		if got, ok := os.LookupEnv(key); ok {
			t.Errorf("%s = %q, want unset in production", key, got)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Setenv("APP_ENV", "")
		if err := LoadDotenv(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("LoadDotenv() error = %v, want nil for missing file", err)
		}
	})
}

func TestWarnPermissions_Loose(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if !strings.Contains(buf.String(), "readable by group/others") {
		t.Errorf("expected permission warning, got: %q", buf.String())
	}
}

func TestWarnPermissions_Strict(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("# test"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{filePath: path}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg.WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no warning for 0600 file, got: %q", buf.String())
	}
}

func TestWarnPermissions_NoFile(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	(&Config{}).WarnPermissions(logger)

	if buf.Len() != 0 {
		t.Errorf("expected no output without a config file, got: %q", buf.String())
	}
}

func TestWarnMissingCredentials(t *testing.T) {
	tests := []struct {
		name     string
		oauth    OAuthConfig
		wantWarn bool
	}{
		{"both set", OAuthConfig{ClientID: "id", ClientSecret: "secret"}, false},
		{"id missing", OAuthConfig{ClientSecret: "secret"}, true},
		{"secret missing", OAuthConfig{ClientID: "id"}, true},
		{"both missing", OAuthConfig{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			(&Config{OAuth: tt.oauth}).WarnMissingCredentials(logger)

			got := strings.Contains(buf.String(), "token exchange will fail")
			if got != tt.wantWarn {
				t.Errorf("warned = %v, want %v (output %q)", got, tt.wantWarn, buf.String())
			}
		})
	}
}

func TestFindConfigInPaths(t *testing.T) {
	dir1 := t.TempDir()
	dir2 := t.TempDir()
	path1 := filepath.Join(dir1, "config.toml")
	path2 := filepath.Join(dir2, "config.toml")

	t.Run("not found", func(t *testing.T) {
		if got := findConfigInPaths([]string{path1, path2}); got != "" {
			t.Errorf("findConfigInPaths() = %q, want empty", got)
		}
	})

	if err := os.WriteFile(path2, []byte("[log]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Run("found", func(t *testing.T) {
		if got := findConfigInPaths([]string{path1, path2}); got != path2 {
			t.Errorf("findConfigInPaths() = %q, want %q", got, path2)
		}
	})

	if err := os.WriteFile(path1, []byte("[log]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Run("priority", func(t *testing.T) {
		if got := findConfigInPaths([]string{path1, path2}); got != path1 {
			t.Errorf("findConfigInPaths() = %q, want first match %q", got, path1)
		}
	})
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
