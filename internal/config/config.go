// Package config defines the tool settings of ecfplookup: where the
// cheminformatics engine lives, how input is read, how diagnostics are logged
// and where run metrics go.  Fingerprint parameters are not part of this
// package; they are loaded by ecfp.LoadParameters from the -c file.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/ecfplookup/internal/infrastructure/monitoring/logging"
)

// EngineConfig holds the connection parameters of the cheminformatics engine.
type EngineConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// InputConfig controls how molecule records are read from standard input.
type InputConfig struct {
	Format string `mapstructure:"format"` // "auto" | "sdf" | "smiles"
}

// LogConfig controls the diagnostic stream.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "console" | "json"
}

// MetricsConfig controls the optional Pushgateway export at the end of a run.
type MetricsConfig struct {
	PushURL string `mapstructure:"push_url"`
	Job     string `mapstructure:"job"`
}

// Config is the root settings object.
type Config struct {
	Engine  EngineConfig  `mapstructure:"engine"`
	Input   InputConfig   `mapstructure:"input"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Engine.URL)
	if err != nil {
		return fmt.Errorf("config: engine.url %q is invalid: %w", c.Engine.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: engine.url %q must use http or https", c.Engine.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("config: engine.url %q has no host", c.Engine.URL)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("config: engine.timeout must be positive, got %s", c.Engine.Timeout)
	}

	switch c.Input.Format {
	case "auto", "sdf", "smiles":
	default:
		return fmt.Errorf("config: input.format %q is invalid; expected auto|sdf|smiles", c.Input.Format)
	}

	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected console|json", c.Log.Format)
	}

	if c.Metrics.PushURL != "" {
		pu, err := url.Parse(c.Metrics.PushURL)
		if err != nil || (pu.Scheme != "http" && pu.Scheme != "https") || pu.Host == "" {
			return fmt.Errorf("config: metrics.push_url %q is invalid", c.Metrics.PushURL)
		}
		if c.Metrics.Job == "" {
			return fmt.Errorf("config: metrics.job is required when metrics.push_url is set")
		}
	}
	return nil
}
