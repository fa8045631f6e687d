// Package config provides configuration loading and management for the
// council service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway"`
	Council CouncilConfig `yaml:"council"`
	Vision  VisionConfig  `yaml:"vision"`
	HTTP    HTTPConfig    `yaml:"http"`
	NATS    NATSConfig    `yaml:"nats"`
}

// GatewayConfig configures the OpenRouter gateway.
type GatewayConfig struct {
	// BaseURL is the OpenRouter API root.
	BaseURL string `yaml:"base_url"`
	// APIKey is the server-side default credential. Callers may override it
	// per request (BYOK). Usually set via OPENROUTER_API_KEY, not the file.
	APIKey string `yaml:"api_key"`
	// Referer and AppTitle populate the OpenRouter attribution headers.
	Referer  string `yaml:"referer"`
	AppTitle string `yaml:"app_title"`
	// CatalogTTL bounds the age of the cached model catalog.
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
}

// CouncilConfig configures the deliberation engine.
type CouncilConfig struct {
	// Members is the default council roster (OpenRouter model ids).
	Members []string `yaml:"members"`
	// Chairman synthesizes the final answer.
	Chairman string `yaml:"chairman"`
	// TitleModel generates conversation titles (default: the chairman).
	TitleModel string `yaml:"title_model"`
	// CallTimeout is the per-member call timeout.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// VisionConfig configures the image extractor.
type VisionConfig struct {
	// DefaultModel is the first-choice vision model.
	DefaultModel string `yaml:"default_model"`
	// Fallbacks are tried in order after the default model fails.
	Fallbacks []string `yaml:"fallbacks"`
	// CallTimeout is the per-attempt timeout.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`
}

// NATSConfig configures conversation storage.
type NATSConfig struct {
	// URL is the NATS server URL. Empty means conversations are kept in
	// process memory.
	URL string `yaml:"url"`
}

// DefaultConfig returns a Config with the stock free-tier roster.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			BaseURL:    "https://openrouter.ai/api/v1",
			CatalogTTL: 5 * time.Minute,
		},
		Council: CouncilConfig{
			Members: []string{
				"openai/gpt-oss-20b:free",
				"google/gemma-3-27b-it:free",
				"tngtech/deepseek-r1t2-chimera:free",
				"x-ai/grok-4.1-fast:free",
			},
			Chairman:    "arcee-ai/trinity-mini:free",
			CallTimeout: 120 * time.Second,
		},
		Vision: VisionConfig{
			DefaultModel: "google/gemma-3-27b-it:free",
			Fallbacks: []string{
				"nvidia/nemotron-nano-12b-2-vl:free",
				"meta-llama/llama-3.2-11b-vision-instruct:free",
				"google/gemma-3-4b-it:free",
			},
			CallTimeout: 90 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr: ":8001",
		},
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway.base_url is required")
	}
	if len(c.Council.Members) == 0 {
		return fmt.Errorf("council.members must list at least one model")
	}
	if c.Council.Chairman == "" {
		return fmt.Errorf("council.chairman is required")
	}
	if c.Vision.DefaultModel == "" {
		return fmt.Errorf("vision.default_model is required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

// Merge merges another config into this one; other takes precedence for
// non-zero values.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Gateway.BaseURL != "" {
		c.Gateway.BaseURL = other.Gateway.BaseURL
	}
	if other.Gateway.APIKey != "" {
		c.Gateway.APIKey = other.Gateway.APIKey
	}
	if other.Gateway.Referer != "" {
		c.Gateway.Referer = other.Gateway.Referer
	}
	if other.Gateway.AppTitle != "" {
		c.Gateway.AppTitle = other.Gateway.AppTitle
	}
	if other.Gateway.CatalogTTL != 0 {
		c.Gateway.CatalogTTL = other.Gateway.CatalogTTL
	}

	if len(other.Council.Members) > 0 {
		c.Council.Members = other.Council.Members
	}
	if other.Council.Chairman != "" {
		c.Council.Chairman = other.Council.Chairman
	}
	if other.Council.TitleModel != "" {
		c.Council.TitleModel = other.Council.TitleModel
	}
	if other.Council.CallTimeout != 0 {
		c.Council.CallTimeout = other.Council.CallTimeout
	}

	if other.Vision.DefaultModel != "" {
		c.Vision.DefaultModel = other.Vision.DefaultModel
	}
	if len(other.Vision.Fallbacks) > 0 {
		c.Vision.Fallbacks = other.Vision.Fallbacks
	}
	if other.Vision.CallTimeout != 0 {
		c.Vision.CallTimeout = other.Vision.CallTimeout
	}

	if other.HTTP.Addr != "" {
		c.HTTP.Addr = other.HTTP.Addr
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
}

// LoadFromFile loads configuration from a YAML file layered over defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
