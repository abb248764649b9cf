package config

import (
	"strings"
	"time"

	"github.com/dittosync/cvsync/pkg/digest"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.Hash == "" {
		cfg.Hash = string(digest.Fallback)
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = 0 // 0 means unlimited; kept explicit for clarity
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	for i := range cfg.Collections {
		applyCollectionDefaults(&cfg.Collections[i])
	}
}

// applyLoggingDefaults sets logging defaults and normalizes the level to
// uppercase for consistent internal representation.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyMetricsDefaults sets metrics server defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = 9090
	}
}

// applyCollectionDefaults sets per-collection defaults.
func applyCollectionDefaults(cfg *CollectionConfig) {
	if cfg.ErrorMode == "" {
		cfg.ErrorMode = "abort"
	}
	if cfg.ScanPath == "" {
		cfg.ScanPath = cfg.Prefix
	}
}

// GetDefaultConfig returns a Config with all default values applied and a
// single "default" collection, useful for tests and `cvsync init`-style
// sample file generation.
func GetDefaultConfig() *Config {
	cfg := &Config{
		ListenPort: 2401,
		Hash:       string(digest.Fallback),
		Collections: []CollectionConfig{
			{
				Name:     "default",
				Release:  "rcs",
				Prefix:   "/var/cvsync/default",
				ScanPath: "/var/cvsync/default",
			},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
