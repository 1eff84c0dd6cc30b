package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for looptrace
type Config struct {
	// Logging
	LogLevel string `yaml:"log_level" env:"LOOPTRACE_LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"LOOPTRACE_LOG_JSON"`

	// Report output format: text, json, yaml, msgpack or dot
	Format string `yaml:"format" env:"LOOPTRACE_FORMAT"`

	// Entries in the catalog's mid-block lookup cache; 0 disables it
	LookupCacheSize int `yaml:"lookup_cache_size" env:"LOOPTRACE_LOOKUP_CACHE_SIZE"`

	// Recordings analyzed concurrently by the batch command
	Jobs int `yaml:"jobs" env:"LOOPTRACE_JOBS"`

	// Abort a trace on the first recoverable diagnostic
	Strict bool `yaml:"strict" env:"LOOPTRACE_STRICT"`

	NoColor bool `yaml:"no_color" env:"LOOPTRACE_NO_COLOR"`

	// Include per-loop instructions and the address map in reports
	ShowInstructions bool `yaml:"show_instructions" env:"LOOPTRACE_SHOW_INSTRUCTIONS"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		LogJSON:          false,
		Format:           "text",
		LookupCacheSize:  4096,
		Jobs:             4,
		Strict:           false,
		NoColor:          false,
		ShowInstructions: false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.looptrace/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".looptrace/config.yaml"
	}
	return filepath.Join(home, ".looptrace", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.looptrace/config.yaml)
func ProjectConfigFilePath() string {
	return ".looptrace/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.looptrace/config.yaml)
// 3. Global config (~/.looptrace/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOOPTRACE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOOPTRACE_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv("LOOPTRACE_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("LOOPTRACE_LOOKUP_CACHE_SIZE"); v != "" {
		if i, ok := parseInt(v); ok && i >= 0 {
			cfg.LookupCacheSize = i
		}
	}
	if v := os.Getenv("LOOPTRACE_JOBS"); v != "" {
		if i, ok := parseInt(v); ok && i > 0 {
			cfg.Jobs = i
		}
	}
	if v := os.Getenv("LOOPTRACE_STRICT"); v != "" {
		cfg.Strict = parseBool(v)
	}
	if v := os.Getenv("LOOPTRACE_NO_COLOR"); v != "" {
		cfg.NoColor = parseBool(v)
	}
	if v := os.Getenv("LOOPTRACE_SHOW_INSTRUCTIONS"); v != "" {
		cfg.ShowInstructions = parseBool(v)
	}
}

// Validate checks that the configuration has valid values
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn or error)", c.LogLevel)
	}

	switch strings.ToLower(c.Format) {
	case "text", "json", "yaml", "msgpack", "dot":
	default:
		return fmt.Errorf("invalid format: %s (must be text, json, yaml, msgpack or dot)", c.Format)
	}

	if c.LookupCacheSize < 0 {
		return fmt.Errorf("lookup_cache_size must be non-negative")
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("jobs must be positive")
	}

	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}

// parseInt attempts to parse a string as int
func parseInt(s string) (int, bool) {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0, false
	}
	return i, true
}
