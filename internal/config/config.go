// Package config loads and validates relay configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override (SECAVIS_SERVER_PORT, ...).
const EnvPrefix = "SECAVIS"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Portal  PortalConfig  `mapstructure:"portal"`
	Store   StoreConfig   `mapstructure:"store"`
	Intake  IntakeConfig  `mapstructure:"intake"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PortalConfig configures the browser automation against the tax portal.
type PortalConfig struct {
	FormURL           string  `mapstructure:"form_url"`
	NavTimeoutSeconds int     `mapstructure:"nav_timeout_seconds"`
	MaxParallel       int     `mapstructure:"max_parallel"`
	UserAgent         string  `mapstructure:"user_agent"`
	CaptureQuality    int     `mapstructure:"capture_quality"`
	RatePerSecond     float64 `mapstructure:"rate_per_second"`
	Burst             int     `mapstructure:"burst"`
	ChromePath        string  `mapstructure:"chrome_path"`
	Headless          bool    `mapstructure:"headless"`
}

// StoreConfig selects and configures the idempotency ledger.
type StoreConfig struct {
	Backend                string `mapstructure:"backend"`
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeMinutes int    `mapstructure:"max_conn_lifetime_minutes"`
	Path                   string `mapstructure:"path"`
}

// IntakeConfig configures the form-intake integration.
type IntakeConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"`
	FormID         string `mapstructure:"form_id"`
	Company        string `mapstructure:"company"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ArchiveConfig selects where captures are archived.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Bucket  string `mapstructure:"bucket"`
	BaseDir string `mapstructure:"base_dir"`
	Prefix  string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for registration events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 90)
	v.SetDefault("portal.form_url", "https://cfsmsp.impots.gouv.fr/secavis/")
	v.SetDefault("portal.nav_timeout_seconds", 45)
	v.SetDefault("portal.max_parallel", 2)
	v.SetDefault("portal.capture_quality", 90)
	v.SetDefault("portal.rate_per_second", 1.0)
	v.SetDefault("portal.burst", 2)
	v.SetDefault("portal.headless", true)
	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.path", "./secavis.db")
	v.SetDefault("store.table", "processed_notices")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.max_conn_lifetime_minutes", 30)
	v.SetDefault("intake.enabled", false)
	v.SetDefault("intake.base_url", "https://www.kizeoforms.com/rest/v3/")
	v.SetDefault("intake.timeout_seconds", 30)
	v.SetDefault("archive.backend", "none")
	v.SetDefault("archive.prefix", "captures")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Server.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("server.request_timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if u, err := url.Parse(c.Portal.FormURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("portal.form_url must be an absolute url")
	}
	if c.Portal.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("portal.nav_timeout_seconds must be > 0")
	}
	if c.Portal.MaxParallel < 0 {
		return fmt.Errorf("portal.max_parallel must be >= 0")
	}
	if c.Portal.CaptureQuality <= 0 || c.Portal.CaptureQuality >= 100 {
		return fmt.Errorf("portal.capture_quality must be between 1 and 99")
	}
	switch c.Store.Backend {
	case "memory":
	case "sqlite":
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set for the sqlite backend")
		}
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", c.Store.Backend)
	}
	if c.Intake.Enabled {
		if c.Intake.BaseURL == "" {
			return fmt.Errorf("intake.base_url must be set when intake is enabled")
		}
		if c.Intake.FormID == "" {
			return fmt.Errorf("intake.form_id must be set when intake is enabled")
		}
	}
	switch c.Archive.Backend {
	case "", "none", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local backend")
		}
	case "gcs":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// NavTimeout converts the portal timeout to a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Portal.NavTimeoutSeconds) * time.Second
}

// RequestTimeout converts the HTTP request budget to a duration.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// IntakeTimeout converts the intake client timeout to a duration.
func (c Config) IntakeTimeout() time.Duration {
	return time.Duration(c.Intake.TimeoutSeconds) * time.Second
}

// MaxConnLifetime converts the Postgres pool lifetime to a duration.
func (c Config) MaxConnLifetime() time.Duration {
	return time.Duration(c.Store.MaxConnLifetimeMinutes) * time.Minute
}
