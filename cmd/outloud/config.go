package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/CTAG07/outloud/pkg/bigram"
	"github.com/natefinch/atomic"
)

// ServerConfig holds the configuration for the HTTP API and the model database.
type ServerConfig struct {
	ApiAddr            string `json:"api_addr"`
	LogLevel           string `json:"log_level"`
	DataDir            string `json:"data_dir"`
	DatabasePath       string `json:"database_path"`
	ShutdownTimeoutSec int    `json:"shutdown_timeout_sec"`
}

// SamplingConfig holds the defaults and limits applied to sampling requests.
type SamplingConfig struct {
	DefaultMaxTokens int `json:"default_max_tokens"`
	MaxTokensLimit   int `json:"max_tokens_limit"`
	CompletionLimit  int `json:"completion_limit"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server   *ServerConfig   `json:"server_config"`
	Sampling *SamplingConfig `json:"sampling_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:            ":7280",
		LogLevel:           "info",
		DataDir:            "./data",
		DatabasePath:       "./data/outloud.db",
		ShutdownTimeoutSec: 10,
	}
}

// DefaultSamplingConfig creates a sampling configuration with default values.
func DefaultSamplingConfig() *SamplingConfig {
	return &SamplingConfig{
		DefaultMaxTokens: bigram.DefaultMaxTokens,
		MaxTokensLimit:   256,
		CompletionLimit:  10,
	}
}

// DefaultConfig returns a Config with every section set to its defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Sampling: DefaultSamplingConfig(),
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// Sections or fields missing from the file keep their default values. If the
// file doesn't exist, the defaults are returned, and written to path when
// writeDefault is set.
func LoadConfig(path string, writeDefault bool) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if writeDefault {
			if err = config.Save(path); err != nil {
				return nil, err
			}
		}
		return config, nil
	}

	if err = json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Sampling == nil {
		config.Sampling = DefaultSamplingConfig()
	}

	if err = config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}
	return config, nil
}

// Validate checks the sampling limits for consistency.
func (c *Config) Validate() error {
	if c.Sampling.DefaultMaxTokens < 0 {
		return fmt.Errorf("default_max_tokens must be non-negative, got %d", c.Sampling.DefaultMaxTokens)
	}
	if c.Sampling.MaxTokensLimit > 0 && c.Sampling.DefaultMaxTokens > c.Sampling.MaxTokensLimit {
		return fmt.Errorf("default_max_tokens (%d) exceeds max_tokens_limit (%d)",
			c.Sampling.DefaultMaxTokens, c.Sampling.MaxTokensLimit)
	}
	return nil
}

// Save writes the configuration to path as indented JSON, replacing the file atomically.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
