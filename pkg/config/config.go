// Package config provides configuration file support for the audit trail.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/complykit/audittrail/pkg/model"
	"github.com/complykit/audittrail/pkg/webhook"
)

// FileName is the config file name inside the trail home.
const FileName = "config.yaml"

// Config represents the trail configuration.
type Config struct {
	DataDir         string          `yaml:"data_dir"`
	DefaultCategory string          `yaml:"default_category"`
	Signing         SigningConfig   `yaml:"signing"`
	Logging         LoggingConfig   `yaml:"logging"`
	Metrics         MetricsConfig   `yaml:"metrics"`
	Webhooks        *webhook.Config `yaml:"webhooks,omitempty"`
}

// SigningConfig selects the signing function for reports and exports.
// Key material is never stored in the file; KeyEnv names the environment
// variable holding it hex-encoded.
type SigningConfig struct {
	Algorithm string `yaml:"algorithm"` // hmac-sha256, ed25519
	KeyEnv    string `yaml:"key_env"`
	KeyID     string `yaml:"key_id"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text
}

// MetricsConfig configures the Prometheus registry.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DataDir:         "data",
		DefaultCategory: model.CategoryAuditLog,
		Signing: SigningConfig{
			Algorithm: "hmac-sha256",
			KeyEnv:    "AUDITTRAIL_SIGNING_KEY",
			KeyID:     "default",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "audittrail",
		},
	}
}

// Load loads configuration from <home>/config.yaml.
// Returns default config if file doesn't exist.
func Load(home string) (*Config, error) {
	cfg := Default()
	cfgPath := filepath.Join(home, FileName)

	data, err := os.ReadFile(cfgPath)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to <home>/config.yaml.
func Save(home string, cfg *Config) error {
	cfgPath := filepath.Join(home, FileName)

	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// Validate rejects settings the trail cannot run with.
func (c *Config) Validate() error {
	switch c.Signing.Algorithm {
	case "", "hmac-sha256", "ed25519":
	default:
		return fmt.Errorf("config: unsupported signing algorithm %q", c.Signing.Algorithm)
	}
	switch c.Logging.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("config: unsupported log format %q", c.Logging.Format)
	}
	return nil
}

// ResolveDataDir returns DataDir made absolute against home.
func (c *Config) ResolveDataDir(home string) string {
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(home, c.DataDir)
}

// LoadEnv loads .env files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}
