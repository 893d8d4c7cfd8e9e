// Package config loads and persists lockstep configuration.
// Configuration lives at .lockstep/config.yaml in the workspace; the
// governance policy constants live in a separate section so they can be
// tuned (and hot-reloaded) without touching engine code.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all lockstep configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM configuration
	LLM LLMConfig `yaml:"llm"`

	// Memory tier storage
	Memory MemoryConfig `yaml:"memory"`

	// Governance policy constants
	Policy Policy `yaml:"policy"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the generation collaborator.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// ParseTimeout returns the generation timeout, or the fallback if unset/invalid.
func (l LLMConfig) ParseTimeout(fallback time.Duration) time.Duration {
	if l.Timeout == "" {
		return fallback
	}
	d, err := time.ParseDuration(l.Timeout)
	if err != nil {
		return fallback
	}
	return d
}

// MemoryConfig configures the four memory tiers.
type MemoryConfig struct {
	// Slow tier: authoritative JSON document
	SlowPath string `yaml:"slow_path"`

	// Fast tier: per-turn JSON snapshot
	FastPath string `yaml:"fast_path"`

	// Bridge + History: SQLite storage
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Categories map[string]bool `yaml:"categories"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
}

// Default returns a configuration with sensible defaults for the given workspace.
func Default(workspace string) *Config {
	dir := filepath.Join(workspace, ".lockstep")
	return &Config{
		Name:    "lockstep",
		Version: "0.1.0",
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "",
			Timeout:  "2m",
		},
		Memory: MemoryConfig{
			SlowPath:     filepath.Join(dir, "slow_memory.json"),
			FastPath:     filepath.Join(dir, "fast_memory.json"),
			DatabasePath: filepath.Join(dir, "lockstep.db"),
		},
		Policy: DefaultPolicy(),
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load reads config from .lockstep/config.yaml under the workspace.
// A missing file yields defaults, not an error.
func Load(workspace string) (*Config, error) {
	cfg := Default(workspace)

	path := filepath.Join(workspace, ".lockstep", "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config to .lockstep/config.yaml under the workspace.
func (c *Config) Save(workspace string) error {
	dir := filepath.Join(workspace, ".lockstep")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644)
}

// applyEnvOverrides applies environment variable overrides.
// API keys win over file contents; provider is inferred from whichever key
// is present when the file does not pin one.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if model := os.Getenv("LOCKSTEP_MODEL"); model != "" {
		c.LLM.Model = model
	}
	if base := os.Getenv("LOCKSTEP_BASE_URL"); base != "" {
		c.LLM.BaseURL = base
	}
}
