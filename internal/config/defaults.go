package config

import "time"

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultEngineURL     = "http://localhost:8085"
	DefaultEngineTimeout = 60 * time.Second

	DefaultInputFormat = "auto"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultMetricsJob = "ecfplookup"
)

// ApplyDefaults fills every zero-value field in cfg with its default.
// Fields that have already been set are left unchanged so that explicit
// configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	if cfg.Engine.URL == "" {
		cfg.Engine.URL = DefaultEngineURL
	}
	if cfg.Engine.Timeout == 0 {
		cfg.Engine.Timeout = DefaultEngineTimeout
	}

	// ── Input ─────────────────────────────────────────────────────────────────
	if cfg.Input.Format == "" {
		cfg.Input.Format = DefaultInputFormat
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = DefaultMetricsJob
	}
}
