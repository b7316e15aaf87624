// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSessionSecretLength is the minimum byte length for the session secret.
const MinSessionSecretLength = 32

// Config holds all application configuration.
type Config struct {
	// Env is the runtime environment: development or production.
	Env string `env:"PENLIGHT_ENV" envDefault:"development"`

	// Host and Port form the HTTP listen address.
	Host string `env:"PENLIGHT_HOST" envDefault:"localhost"`
	Port int    `env:"PENLIGHT_PORT" envDefault:"8080"`

	// BaseURL is the public base URL, used for absolute links.
	BaseURL string `env:"PENLIGHT_BASE_URL" envDefault:"http://localhost:8080"`

	// DBPath is the SQLite database file path.
	DBPath string `env:"PENLIGHT_DB_PATH" envDefault:"./data/penlight.db"`

	// UploadDir is the root directory for uploaded images.
	UploadDir string `env:"PENLIGHT_UPLOAD_DIR" envDefault:"./data/uploads"`

	// SessionSecret signs session and CSRF material. Required.
	SessionSecret string `env:"PENLIGHT_SESSION_SECRET,required"`

	// TokenSecret signs API access tokens. Defaults to SessionSecret.
	TokenSecret string `env:"PENLIGHT_TOKEN_SECRET"`

	// TokenTTL is the API access token lifetime.
	TokenTTL time.Duration `env:"PENLIGHT_TOKEN_TTL" envDefault:"1h"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"PENLIGHT_LOG_LEVEL" envDefault:"info"`

	// SeedAdmin creates a default admin user on startup when none exists.
	SeedAdmin bool `env:"PENLIGHT_SEED_ADMIN" envDefault:"true"`

	// RedisURL enables the rendered-page cache when set
	// (e.g. redis://localhost:6379/0).
	RedisURL string `env:"PENLIGHT_REDIS_URL"`

	// GeoIPDBPath enables country lookup on auth events when set to a
	// MaxMind GeoLite2-Country database file.
	GeoIPDBPath string `env:"PENLIGHT_GEOIP_DB"`
}

// Load parses configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if len(cfg.SessionSecret) < MinSessionSecretLength {
		return nil, fmt.Errorf("PENLIGHT_SESSION_SECRET must be at least %d characters", MinSessionSecretLength)
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PENLIGHT_PORT out of range: %d", cfg.Port)
	}

	if cfg.TokenSecret == "" {
		cfg.TokenSecret = cfg.SessionSecret
	}

	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("PENLIGHT_TOKEN_TTL must be positive")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid PENLIGHT_LOG_LEVEL: %q", cfg.LogLevel)
	}

	return cfg, nil
}

// ServerAddr returns the host:port listen address.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment reports whether the app runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
