// Package config reads server settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings of the factionsim server. Command-line flags
// override these after loading.
type Config struct {
	DBPath           string        `env:"FACTIONS_DB_PATH"           envDefault:"data/factions.db"`
	Port             int           `env:"FACTIONS_API_PORT"          envDefault:"8080"`
	AdminKey         string        `env:"FACTIONS_ADMIN_KEY"`
	CatalogPath      string        `env:"FACTIONS_CATALOG"`
	WatchCatalog     bool          `env:"FACTIONS_WATCH_CATALOG"     envDefault:"false"`
	SnapshotSchedule string        `env:"FACTIONS_SNAPSHOT_SCHEDULE" envDefault:"@every 5m"`
	TickInterval     time.Duration `env:"FACTIONS_TICK_INTERVAL"     envDefault:"1s"`
	Seed             int64         `env:"FACTIONS_SEED"              envDefault:"42"`
	LogLevel         string        `env:"FACTIONS_LOG_LEVEL"         envDefault:"info"`
	CORSOrigins      []string      `env:"CORS_ORIGINS"               envSeparator:","`
}

// Load parses the environment. Callers validate once flags are applied.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.WatchCatalog && c.CatalogPath == "" {
		return fmt.Errorf("catalog watching needs FACTIONS_CATALOG")
	}
	return nil
}

// Level maps LogLevel to a slog level.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return l, nil
}

// Addr is the listen address.
func (c Config) Addr() string { return fmt.Sprintf(":%d", c.Port) }
