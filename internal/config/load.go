package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"
)

// ConfigPathEnv names the environment variable consulted when Load gets no path.
const ConfigPathEnv = "PLUSD_CONFIG"

// Load merges Default() + optional config file + PLUSD_* environment overrides,
// then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(ConfigPathEnv)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile decodes a YAML or TOML file over cfg, chosen by extension.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// applyEnvOverrides parses PLUSD_* variables into the scalar sections. The
// device list is file-only.
func applyEnvOverrides(cfg *Config) error {
	sections := []struct {
		name   string
		target any
	}{
		{"processor", &cfg.Processor},
		{"logging", &cfg.Logging},
		{"audit", &cfg.Audit},
		{"tracing", &cfg.Tracing},
	}
	for _, s := range sections {
		if err := env.Parse(s.target); err != nil {
			return fmt.Errorf("parse env for %s: %w", s.name, err)
		}
	}
	return nil
}
