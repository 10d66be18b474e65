// Package config loads process configuration for an embedded reldb
// instance from YAML.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nainya/reldb/internal/dberr"
)

// Config holds the settings an embedding process needs beyond what
// pkg/rowstore.Open takes directly.
type Config struct {
	Path          string `yaml:"path"`
	PageCacheWarn int    `yaml:"page_cache_warn"`
	LogLevel      string `yaml:"log_level"`
	MetricsAddr   string `yaml:"metrics_addr"`
}

// Default returns the zero-config settings for embedding reldb with no
// YAML file present.
func Default() *Config {
	return &Config{
		Path:          "reldb.db",
		PageCacheWarn: 100000,
		LogLevel:      "info",
		MetricsAddr:   "",
	}
}

// Load reads and parses a YAML config file at path, filling in defaults
// for any field the file omits.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, dberr.Wrap(dberr.Io, "config.Load", "reading config file", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, dberr.Wrap(dberr.BadRequest, "config.Load", "parsing config file", err)
	}
	return cfg, nil
}
