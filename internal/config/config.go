// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads runtime configuration from defaults, an optional YAML
// file, and command-line flags, in that precedence order.
package config

import (
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Journal backends.
const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"
)

// Config holds the runtime configuration for a simulation run.
type Config struct {
	// Scenario is the path of the scenario file to load.
	Scenario string `koanf:"scenario"`

	// TickInterval is the wall-clock pacing between ticks.
	TickInterval time.Duration `koanf:"tick_interval"`

	// Ticks caps the run length; 0 runs until cancelled.
	Ticks int `koanf:"ticks"`

	// Journal selects the batch journal backend: "memory" or "postgres".
	Journal string `koanf:"journal"`

	// DatabaseURL is the PostgreSQL DSN for the postgres journal.
	DatabaseURL string `koanf:"database_url"`

	// MetricsAddr is the observability HTTP address; empty disables it.
	MetricsAddr string `koanf:"metrics_addr"`

	// LogFormat is "json" or "text".
	LogFormat string `koanf:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TickInterval: 100 * time.Millisecond,
		Journal:      JournalMemory,
		MetricsAddr:  "127.0.0.1:9100",
		LogFormat:    "json",
	}
}

// Load merges defaults, the optional YAML file at path, and the given flag
// set into a Config. Flags win over the file, which wins over defaults.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_FILE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_PARSE_FAILED").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (cfg Config) Validate() error {
	if cfg.Scenario == "" {
		return oops.Code("CONFIG_INVALID").Errorf("scenario is required")
	}
	if cfg.TickInterval < 0 {
		return oops.Code("CONFIG_INVALID").Errorf("tick_interval must not be negative")
	}
	switch cfg.Journal {
	case JournalMemory:
	case JournalPostgres:
		if cfg.DatabaseURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database_url is required for the postgres journal")
		}
	default:
		return oops.Code("CONFIG_INVALID").
			With("journal", cfg.Journal).
			Errorf("journal must be %q or %q", JournalMemory, JournalPostgres)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			With("log_format", cfg.LogFormat).
			Errorf("log_format must be 'json' or 'text'")
	}
	return nil
}
