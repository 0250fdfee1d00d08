/*
config.go - Runtime configuration and logger construction

PURPOSE:
  Loads settings from POS_* environment variables. The database path here is
  the "database location" the rest of the system is handed; nothing reads
  environment variables anywhere else.

VARIABLES:
  POS_DB_PATH              SQLite database file (default: pos.db, ":memory:" allowed)
  POS_PORT                 HTTP port (default: 8080)
  POS_LOG_LEVEL            logrus level (default: info)
  POS_LOG_FORMAT           text | json (default: text)
  POS_AUTO_CLOSE           close yesterday automatically at boot (default: true)
  POS_BOOT_CHECK_INTERVAL  repeat the boot check; 0 = once at startup
  POS_RATE_LIMIT           API requests per minute per client (default: 120)
  POS_ALLOWED_ORIGINS      CORS origins, comma separated

SEE ALSO:
  - cmd/server/main.go: Flags override these values
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

// Config holds runtime configuration for the server.
type Config struct {
	DBPath            string        `envconfig:"DB_PATH" default:"pos.db"`
	Port              int           `envconfig:"PORT" default:"8080"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat         string        `envconfig:"LOG_FORMAT" default:"text"`
	AutoClose         bool          `envconfig:"AUTO_CLOSE" default:"true"`
	BootCheckInterval time.Duration `envconfig:"BOOT_CHECK_INTERVAL" default:"0s"`
	RateLimit         int           `envconfig:"RATE_LIMIT" default:"120"`
	AllowedOrigins    []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:8080"`
}

// Load reads configuration from POS_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("pos", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("config: database path required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.BootCheckInterval < 0 {
		return errors.New("config: boot check interval cannot be negative")
	}
	if c.RateLimit < 0 {
		return errors.New("config: rate limit cannot be negative")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	return nil
}

// NewLogger returns a logrus logger configured from cfg.
func NewLogger(cfg *Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg != nil && cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level := logrus.InfoLevel
	if cfg != nil {
		if parsed, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			level = parsed
		}
	}
	logger.SetLevel(level)
	return logger
}
