package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogJSON", cfg.LogJSON, false},
		{"Format", cfg.Format, "text"},
		{"LookupCacheSize", cfg.LookupCacheSize, 4096},
		{"Jobs", cfg.Jobs, 4},
		{"Strict", cfg.Strict, false},
		{"NoColor", cfg.NoColor, false},
		{"ShowInstructions", cfg.ShowInstructions, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errContains string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "upper case names", mutate: func(c *Config) { c.LogLevel = "DEBUG"; c.Format = "JSON" }},
		{name: "cache disabled", mutate: func(c *Config) { c.LookupCacheSize = 0 }},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.LogLevel = "loud" },
			wantErr:     true,
			errContains: "invalid log_level",
		},
		{
			name:        "invalid format",
			mutate:      func(c *Config) { c.Format = "xml" },
			wantErr:     true,
			errContains: "invalid format",
		},
		{
			name:        "negative cache size",
			mutate:      func(c *Config) { c.LookupCacheSize = -1 },
			wantErr:     true,
			errContains: "lookup_cache_size",
		},
		{
			name:        "zero jobs",
			mutate:      func(c *Config) { c.Jobs = 0 },
			wantErr:     true,
			errContains: "jobs must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errContains)
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
				return
			}
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		envVars     map[string]string
		checkCfg    func(*testing.T, *Config)
		wantErr     bool
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
log_level: debug
log_json: true
format: yaml
lookup_cache_size: 128
jobs: 8
strict: true
no_color: true
show_instructions: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.LogLevel != "debug" {
					t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
				}
				if !cfg.LogJSON {
					t.Error("LogJSON = false, want true")
				}
				if cfg.Format != "yaml" {
					t.Errorf("Format = %v, want yaml", cfg.Format)
				}
				if cfg.LookupCacheSize != 128 {
					t.Errorf("LookupCacheSize = %v, want 128", cfg.LookupCacheSize)
				}
				if cfg.Jobs != 8 {
					t.Errorf("Jobs = %v, want 8", cfg.Jobs)
				}
				if !cfg.Strict || !cfg.NoColor || !cfg.ShowInstructions {
					t.Errorf("flags = %v/%v/%v, want all true", cfg.Strict, cfg.NoColor, cfg.ShowInstructions)
				}
			},
		},
		{
			name:       "partial file keeps defaults",
			configYAML: "format: dot\n",
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Format != "dot" {
					t.Errorf("Format = %v, want dot", cfg.Format)
				}
				if cfg.Jobs != 4 {
					t.Errorf("Jobs = %v, want default 4", cfg.Jobs)
				}
			},
		},
		{
			name:       "env var overrides file values",
			configYAML: "format: json\njobs: 2\n",
			envVars: map[string]string{
				"LOOPTRACE_FORMAT": "msgpack",
				"LOOPTRACE_JOBS":   "16",
			},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Format != "msgpack" {
					t.Errorf("Format = %v, want msgpack (from env)", cfg.Format)
				}
				if cfg.Jobs != 16 {
					t.Errorf("Jobs = %v, want 16 (from env)", cfg.Jobs)
				}
			},
		},
		{
			name: "invalid yaml",
			configYAML: `
format: text
  invalid: indent
`,
			wantErr:     true,
			errContains: "failed to parse",
		},
		{
			name:        "invalid format in file",
			configYAML:  "format: xml\n",
			wantErr:     true,
			errContains: "invalid format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			tmpDir := t.TempDir()
			configPath := filepath.Join(tmpDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			cfg, err := LoadFromFile(configPath)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error containing %q, got nil", tt.errContains)
				} else if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Error = %q, should contain %q", err.Error(), tt.errContains)
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			if tt.checkCfg != nil {
				tt.checkCfg(t, cfg)
			}
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("LoadFromFile() error = %v, want read failure", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *Config)
	}{
		{
			name: "override logging",
			envVars: map[string]string{
				"LOOPTRACE_LOG_LEVEL": "warn",
				"LOOPTRACE_LOG_JSON":  "yes",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.LogLevel != "warn" {
					t.Errorf("LogLevel = %v, want warn", cfg.LogLevel)
				}
				if !cfg.LogJSON {
					t.Error("LogJSON = false, want true")
				}
			},
		},
		{
			name: "override numeric values",
			envVars: map[string]string{
				"LOOPTRACE_LOOKUP_CACHE_SIZE": "0",
				"LOOPTRACE_JOBS":              "2",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.LookupCacheSize != 0 {
					t.Errorf("LookupCacheSize = %v, want 0", cfg.LookupCacheSize)
				}
				if cfg.Jobs != 2 {
					t.Errorf("Jobs = %v, want 2", cfg.Jobs)
				}
			},
		},
		{
			name: "invalid numbers are ignored",
			envVars: map[string]string{
				"LOOPTRACE_LOOKUP_CACHE_SIZE": "lots",
				"LOOPTRACE_JOBS":              "-3",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.LookupCacheSize != 4096 {
					t.Errorf("LookupCacheSize = %v, want 4096", cfg.LookupCacheSize)
				}
				if cfg.Jobs != 4 {
					t.Errorf("Jobs = %v, want 4", cfg.Jobs)
				}
			},
		},
		{
			name: "override booleans",
			envVars: map[string]string{
				"LOOPTRACE_STRICT":            "true",
				"LOOPTRACE_NO_COLOR":          "1",
				"LOOPTRACE_SHOW_INSTRUCTIONS": "no",
			},
			check: func(t *testing.T, cfg *Config) {
				if !cfg.Strict {
					t.Error("Strict = false, want true")
				}
				if !cfg.NoColor {
					t.Error("NoColor = false, want true")
				}
				if cfg.ShowInstructions {
					t.Error("ShowInstructions = true, want false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			tt.check(t, cfg)
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input  string
		want   int
		wantOK bool
	}{
		{"42", 42, true},
		{"-1", -1, true},
		{"abc", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := parseInt(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("parseInt(%q) = %v, %v, want %v, %v", tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "dirs", "config.yaml")

	cfg := DefaultConfig()
	cfg.Format = "json"
	cfg.Jobs = 12
	cfg.Strict = true

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatalf("Config file was not created at %s", configPath)
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if *loadedCfg != *cfg {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", *loadedCfg, *cfg)
	}
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	cfg := DefaultConfig()
	cfg.Format = "dot"
	if err := cfg.Save(ProjectConfigFilePath()); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Format != "dot" {
		t.Errorf("Format = %v, want dot", loaded.Format)
	}
}
