package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "ECFPLOOKUP"

// newViper builds a pre-configured Viper instance: YAML file type,
// ECFPLOOKUP_ env prefix, automatic env binding, and a key replacer that maps
// "." → "_" so that "engine.url" resolves to "ECFPLOOKUP_ENGINE_URL".
//
// Every key gets a viper default; without one AutomaticEnv is not consulted
// by Unmarshal.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("engine.url", DefaultEngineURL)
	v.SetDefault("engine.api_key", "")
	v.SetDefault("engine.timeout", DefaultEngineTimeout)
	v.SetDefault("input.format", DefaultInputFormat)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("metrics.push_url", "")
	v.SetDefault("metrics.job", DefaultMetricsJob)
	return v
}

// Load reads the settings file at configPath, merges any ECFPLOOKUP_*
// environment variable overrides, applies defaults for unset fields and
// validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read settings file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from ECFPLOOKUP_* environment
// variables, with no settings file required.
//
//	ECFPLOOKUP_<SECTION>_<FIELD>   e.g.  ECFPLOOKUP_ENGINE_URL, ECFPLOOKUP_LOG_LEVEL
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

// unmarshalAndFinalize unmarshals viper state into a Config struct, applies
// defaults, and validates the result.
func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}
