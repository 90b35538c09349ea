// Package config loads and validates fsguard configuration from file,
// environment, and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config captures the static configuration of the fsguard core.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (FSGUARD_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Workspace scopes the root capability minted at startup
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`

	// Audit configures the hash-chained audit log
	Audit AuditConfig `mapstructure:"audit" yaml:"audit"`

	// Engine configures the transactional filesystem engine
	Engine EngineConfig `mapstructure:"engine" yaml:"engine"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output.
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format selects text (human, colored on terminals) or json output
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// WorkspaceConfig scopes the working area.
type WorkspaceConfig struct {
	// Root is the directory the startup capability is minted on.
	// Everything fsguard touches lives under it.
	Root string `mapstructure:"root" validate:"required" yaml:"root"`

	// Permissions granted to the root capability, drawn from
	// [read, write, delete, createdir]. Empty means all four.
	Permissions []string `mapstructure:"permissions" validate:"dive,oneof=read write delete createdir" yaml:"permissions"`
}

// AuditConfig configures audit log persistence.
type AuditConfig struct {
	// Path is the audit log file location. Relative paths resolve
	// against the workspace root.
	Path string `mapstructure:"path" validate:"required" yaml:"path"`
}

// EngineConfig tunes the transactional engine.
type EngineConfig struct {
	// RetryAttempts is the total number of tries per filesystem call on
	// transient errors, including the first.
	RetryAttempts int `mapstructure:"retry_attempts" validate:"gte=1,lte=10" yaml:"retry_attempts"`

	// RetryBackoff is the pause between retries.
	RetryBackoff time.Duration `mapstructure:"retry_backoff" validate:"gte=0" yaml:"retry_backoff"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled turns metrics collection on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// ListenAddress is the metrics HTTP listen address
	ListenAddress string `mapstructure:"listen_address" yaml:"listen_address"`

	// Path is the HTTP path serving metrics
	Path string `mapstructure:"path" yaml:"path"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath falls back to the default location; a missing
// file yields the default configuration.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return Default(), nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks struct-level constraints on cfg.
func Validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("field %s failed %q validation", e.Namespace(), e.Tag())
	}
	return err
}

// Save writes cfg to path in YAML form. Parent directories are created
// as needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// WriteSample writes the default configuration to path, for use by
// "fsguard init".
func WriteSample(path string) error {
	return Save(Default(), path)
}

// setupViper configures environment variable and config file handling.
// Environment variables use the FSGUARD_ prefix with underscores, e.g.
// FSGUARD_LOGGING_LEVEL=DEBUG.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FSGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(configDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the config file if present. A missing file is
// not an error.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// configDecodeHooks parses durations written as strings ("50ms").
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// configDir returns $XDG_CONFIG_HOME/fsguard, falling back to
// ~/.config/fsguard.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fsguard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "fsguard")
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(DefaultConfigPath())
	return err == nil
}
