package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// secretEnv holds secrets that may be injected through the environment.
type secretEnv struct {
	OAuthClientID     string `env:"CELLGRID_OAUTH_CLIENT_ID"`
	OAuthClientSecret string `env:"CELLGRID_OAUTH_CLIENT_SECRET"`
	SessionSecret     string `env:"CELLGRID_SESSION_SECRET"`
	DatabasePassword  string `env:"CELLGRID_DATABASE_PASSWORD"`
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides secrets with any CELLGRID_* variables that are set.
func (c *Config) applyEnv() error {
	var raw secretEnv
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if raw.OAuthClientID != "" {
		c.OAuth.ClientID = raw.OAuthClientID
	}
	if raw.OAuthClientSecret != "" {
		c.OAuth.ClientSecret = raw.OAuthClientSecret
	}
	if raw.SessionSecret != "" {
		c.Session.Secret = raw.SessionSecret
	}
	if raw.DatabasePassword != "" {
		c.Database.Password = raw.DatabasePassword
	}
	return nil
}
