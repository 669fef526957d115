package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path == "" {
		t.Fatalf("expected sqlite default store, got %+v", cfg.Store)
	}
	if got := cfg.NavTimeout(); got != 45*time.Second {
		t.Fatalf("expected 45s nav timeout, got %v", got)
	}
	if cfg.Intake.Enabled {
		t.Fatalf("expected intake disabled by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 120
auth:
  enabled: true
  api_key: secret
portal:
  form_url: https://portal.example/secavis/
  nav_timeout_seconds: 30
  max_parallel: 4
  capture_quality: 75
  rate_per_second: 0.5
store:
  backend: postgres
  dsn: postgres://relay@localhost/relay
  max_conn_lifetime_minutes: 10
intake:
  enabled: true
  form_id: "228400"
  company: ACME
archive:
  backend: gcs
  bucket: captures
pubsub:
  project_id: proj
  topic_name: notices
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.RequestTimeout() != 120*time.Second {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Portal.MaxParallel != 4 || cfg.Portal.CaptureQuality != 75 || cfg.Portal.RatePerSecond != 0.5 {
		t.Fatalf("expected portal overrides, got %+v", cfg.Portal)
	}
	if cfg.Store.Backend != "postgres" || cfg.MaxConnLifetime() != 10*time.Minute {
		t.Fatalf("expected postgres store, got %+v", cfg.Store)
	}
	if !cfg.Intake.Enabled || cfg.Intake.FormID != "228400" || cfg.IntakeTimeout() != 30*time.Second {
		t.Fatalf("expected intake overrides, got %+v", cfg.Intake)
	}
	if cfg.Archive.Backend != "gcs" || cfg.Archive.Prefix != "captures" {
		t.Fatalf("expected gcs archive, got %+v", cfg.Archive)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected production logging")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SECAVIS_SERVER_PORT", "9191")
	t.Setenv("SECAVIS_STORE_BACKEND", "memory")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Fatalf("expected env port 9191, got %d", cfg.Server.Port)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("expected env store backend, got %q", cfg.Store.Backend)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080, RequestTimeoutSeconds: 60},
		Portal: PortalConfig{
			FormURL:           "https://portal.example/secavis/",
			NavTimeoutSeconds: 45,
			CaptureQuality:    90,
		},
		Store: StoreConfig{Backend: "memory"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid request timeout", func(c *Config) { c.Server.RequestTimeoutSeconds = 0 }, "server.request_timeout_seconds"},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"relative form url", func(c *Config) { c.Portal.FormURL = "/secavis" }, "portal.form_url"},
		{"nav timeout", func(c *Config) { c.Portal.NavTimeoutSeconds = 0 }, "portal.nav_timeout_seconds"},
		{"negative parallel", func(c *Config) { c.Portal.MaxParallel = -1 }, "portal.max_parallel"},
		{"lossless capture", func(c *Config) { c.Portal.CaptureQuality = 100 }, "portal.capture_quality"},
		{"unknown store", func(c *Config) { c.Store.Backend = "redis" }, "store.backend"},
		{"sqlite without path", func(c *Config) { c.Store.Backend = "sqlite" }, "store.path"},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = "postgres" }, "store.dsn"},
		{"intake without form", func(c *Config) {
			c.Intake.Enabled = true
			c.Intake.BaseURL = "https://intake.example/"
		}, "intake.form_id"},
		{"local archive without dir", func(c *Config) { c.Archive.Backend = "local" }, "archive.base_dir"},
		{"gcs archive without bucket", func(c *Config) { c.Archive.Backend = "gcs" }, "archive.bucket"},
		{"unknown archive", func(c *Config) { c.Archive.Backend = "s3" }, "archive.backend"},
		{"topic without project", func(c *Config) { c.PubSub.TopicName = "notices" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
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
