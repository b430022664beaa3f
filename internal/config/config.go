// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Keys are flat and match the koanf tags; env vars carry the DROPWATCH_ prefix.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/dropwatch/internal/adapters/repository"
	"github.com/robfig/cron/v3"
)

// Store drivers accepted by StoreDriver.
const (
	DriverCSV      = repository.DriverCSV
	DriverSQLite   = repository.DriverSQLite
	DriverPostgres = repository.DriverPostgres
	DriverMemory   = repository.DriverMemory
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// ModelPath points at the JSON model artifact loaded at startup.
	ModelPath string `koanf:"model_path"`

	// StoreDriver selects the intervention log backend.
	StoreDriver string `koanf:"store_driver"`

	// StorePath is the CSV file used by the csv driver.
	StorePath string `koanf:"store_path"`

	// SQLiteDSN and PostgresDSN are used by their drivers.
	SQLiteDSN   string `koanf:"sqlite_dsn"`
	PostgresDSN string `koanf:"postgres_dsn"`

	// PostgresMaxConns bounds the pgx pool.
	PostgresMaxConns int `koanf:"postgres_max_conns"`

	// LowRiskThreshold and HighRiskThreshold are the tier cut points in percent.
	LowRiskThreshold  float64 `koanf:"low_risk_threshold"`
	HighRiskThreshold float64 `koanf:"high_risk_threshold"`

	// MetricsRefreshSpec is the cron spec for refreshing store gauges.
	MetricsRefreshSpec string `koanf:"metrics_refresh_spec"`

	// CORSAllowedOrigins is a comma separated origin list; "*" allows any.
	CORSAllowedOrigins string `koanf:"cors_allowed_origins"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":8000",
		ModelPath:          "models/dropout_model.json",
		StoreDriver:        DriverCSV,
		StorePath:          "data/interventions.csv",
		SQLiteDSN:          "data/interventions.db",
		PostgresMaxConns:   4,
		LowRiskThreshold:   30,
		HighRiskThreshold:  60,
		MetricsRefreshSpec: "@every 30s",
		CORSAllowedOrigins: "*",
	}
}

// StoreTarget returns the path or DSN the configured driver opens.
func (c *Config) StoreTarget() string {
	switch c.StoreDriver {
	case DriverSQLite:
		return c.SQLiteDSN
	case DriverPostgres:
		return c.PostgresDSN
	case DriverCSV:
		return c.StorePath
	default:
		return ""
	}
}

// AllowedOrigins splits CORSAllowedOrigins, dropping blanks.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.ModelPath == "":
		return fmt.Errorf("%w: model_path must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	case !(c.LowRiskThreshold >= 0 && c.LowRiskThreshold < c.HighRiskThreshold && c.HighRiskThreshold <= 100):
		return fmt.Errorf("%w: thresholds must satisfy 0 <= low < high <= 100, got %v/%v",
			ErrInvalidConfig, c.LowRiskThreshold, c.HighRiskThreshold)
	}

	switch c.StoreDriver {
	case DriverCSV, DriverSQLite, DriverPostgres:
		if c.StoreTarget() == "" {
			return fmt.Errorf("%w: store driver %s needs a path or dsn", ErrInvalidConfig, c.StoreDriver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.StoreDriver == DriverPostgres && c.PostgresMaxConns <= 0 {
		return fmt.Errorf("%w: postgres_max_conns must be positive", ErrInvalidConfig)
	}

	if c.MetricsRefreshSpec != "" {
		if _, err := cron.ParseStandard(c.MetricsRefreshSpec); err != nil {
			return fmt.Errorf("%w: metrics_refresh_spec: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
