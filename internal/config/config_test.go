package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Empty(t, cfg.Server.BasePath)
	require.Zero(t, cfg.Server.RequestTimeout)
	require.Equal(t, []string{"*"}, cfg.CORS.AllowedOrigins)
	require.True(t, cfg.CORS.AllowCredentials)
	require.Equal(t, DefaultEdisonBaseURL, cfg.Edison.BaseURL)
	require.Equal(t, 5*time.Second, cfg.Edison.PollInterval)
	require.False(t, cfg.Auth.XTokenCheck)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  base_path: /api/v1/
  request_timeout: 2m
logging:
  development: false
cors:
  allowed_origins: ["https://app.example.com"]
  allowed_methods: ["GET", "POST"]
  allow_credentials: false
edison:
  base_url: https://edison.internal
  poll_interval: 250ms
  http_timeout: 10s
auth:
  x_token_check: true
  x_token: fake-super-secret-token
tracing:
  enabled: true
  service_name: gw
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "/api/v1", cfg.Server.BasePath)
	require.Equal(t, 2*time.Minute, cfg.Server.RequestTimeout)
	require.False(t, cfg.Logging.Development)
	require.Equal(t, []string{"https://app.example.com"}, cfg.CORS.AllowedOrigins)
	require.Equal(t, []string{"GET", "POST"}, cfg.CORS.AllowedMethods)
	require.False(t, cfg.CORS.AllowCredentials)
	require.Equal(t, "https://edison.internal", cfg.Edison.BaseURL)
	require.Equal(t, 250*time.Millisecond, cfg.Edison.PollInterval)
	require.Equal(t, 10*time.Second, cfg.Edison.HTTPTimeout)
	require.True(t, cfg.Auth.XTokenCheck)
	require.Equal(t, "fake-super-secret-token", cfg.Auth.XToken)
	require.True(t, cfg.Tracing.Enabled)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, "read config")
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("EDISON_GATEWAY_SERVER_PORT", "7070")
	t.Setenv("EDISON_GATEWAY_EDISON_BASE_URL", "http://localhost:9999")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Server.Port)
	require.Equal(t, "http://localhost:9999", cfg.Edison.BaseURL)
}

func TestLoadDotEnvMissingIsFine(t *testing.T) {
	t.Parallel()

	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), ".env")))
}

func TestNormalizeBasePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":         "",
		"/":        "",
		" /api/ ":  "/api",
		"/api/v1":  "/api/v1",
		"/api/v1/": "/api/v1",
	}
	for in, want := range tests {
		require.Equal(t, want, normalizeBasePath(in), "input %q", in)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Defaults()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "negative timeout", mutate: func(c *Config) { c.Server.RequestTimeout = -time.Second }, want: "server.request_timeout"},
		{name: "relative base path", mutate: func(c *Config) { c.Server.BasePath = "api" }, want: "server.base_path"},
		{name: "relative edison url", mutate: func(c *Config) { c.Edison.BaseURL = "edison.local" }, want: "edison.base_url"},
		{name: "zero poll interval", mutate: func(c *Config) { c.Edison.PollInterval = 0 }, want: "edison.poll_interval"},
		{name: "negative max age", mutate: func(c *Config) { c.CORS.MaxAge = -1 }, want: "cors.max_age"},
		{
			name: "tracing without service name",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.ServiceName = ""
			},
			want: "tracing.service_name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDefaultsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Defaults().Validate())
}
