package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all Sibyl configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Storage    StorageConfig    `yaml:"storage"`
	Presets    PresetsConfig    `yaml:"presets"`
	LogLevel   string           `yaml:"log_level"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// OpenRouterConfig defines the upstream text-generation provider.
type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// RateLimitConfig controls per-user quotas.
type RateLimitConfig struct {
	MaxRequests   uint32 `yaml:"max_requests"`
	WindowSeconds int64  `yaml:"window_seconds"`
}

// Window returns the quota window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// StorageConfig selects the saying store backend.
// Kind is "memory", "sqlite" or "redis"; unknown kinds fall back to memory.
type StorageConfig struct {
	Kind     string `yaml:"kind"`
	Path     string `yaml:"path"`
	RedisURL string `yaml:"redis_url"`
}

// PresetsConfig locates the preset catalog file.
type PresetsConfig struct {
	FilePath string `yaml:"file_path"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 3000,
		},
		OpenRouter: OpenRouterConfig{
			Model:   "mistralai/mistral-7b-instruct",
			BaseURL: "https://openrouter.ai/api/v1",
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   10,
			WindowSeconds: 3600,
		},
		Storage: StorageConfig{
			Kind: "memory",
			Path: "sibyl.db",
		},
		Presets: PresetsConfig{
			FilePath: "presets.yaml",
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}
