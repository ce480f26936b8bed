// Package config reads the server configuration from the environment.
//
// Values come from environment variables, optionally preloaded from a .env
// file (variables already set in the environment win over the file).
// Every key is listed on Config with its default.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const minSecretLength = 16

type Config struct {
	Port      int    `envconfig:"PORT"       default:"8080"`
	LogLevel  string `envconfig:"LOG_LEVEL"  default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	StoreDriver string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath  string `envconfig:"SQLITE_PATH"  default:"data/estimator.db"`
	DatabaseURL string `envconfig:"DATABASE_URL"`

	SessionCachePath string `envconfig:"SESSION_CACHE_PATH" default:"data/session.json"`

	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL"  default:"1h"`

	GitHubClientID     string `envconfig:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `envconfig:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `envconfig:"GITHUB_CALLBACK_URL"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	LoginRatePerMinute int      `envconfig:"LOGIN_RATE_PER_MINUTE" default:"10"`
}

// Load reads envFiles (missing files are skipped), then the environment,
// and validates the result. With no envFiles it looks for ".env".
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks what envconfig's tags cannot express.
func (c *Config) Validate() error {
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("config: PORT %d is out of range", c.Port)
	case len(c.JWTSecret) < minSecretLength:
		return fmt.Errorf("config: JWT_SECRET must be at least %d characters", minSecretLength)
	case c.TokenTTL <= 0:
		return fmt.Errorf("config: TOKEN_TTL must be positive")
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	switch c.StoreDriver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("config: SQLITE_PATH is required for the sqlite store")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres store")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		return fmt.Errorf("config: GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}
	if c.GitHubCallbackURL == "" {
		c.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/login/github/callback", c.Port)
	}
	return nil
}

// GitHubEnabled reports whether GitHub sign-in is configured.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}
