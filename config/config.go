// Package config provides configuration loading and management for DeckCheck.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/deckcheck/model"
)

// Config represents the complete DeckCheck configuration
type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Run    RunConfig    `yaml:"run"`
	Server ServerConfig `yaml:"server"`
	Render RenderConfig `yaml:"render"`
}

// ModelConfig configures the LLM registry settings
type ModelConfig struct {
	// Default is the default model name when no capability matches
	Default string `yaml:"default"`
	// Temperature controls randomness (0.0-1.0)
	Temperature float64 `yaml:"temperature"`
	// Timeout is the maximum time to wait for model responses
	Timeout time.Duration `yaml:"timeout"`
	// Capabilities maps capability names to model preference chains
	// (empty = built-in defaults)
	Capabilities map[model.Capability]*model.CapabilityConfig `yaml:"capabilities"`
	// Endpoints maps model names to provider endpoints
	// (empty = built-in defaults)
	Endpoints map[string]*model.EndpointConfig `yaml:"endpoints"`
}

// RunConfig holds default presentation context for analysis runs.
// Command-line flags override these per invocation.
type RunConfig struct {
	// Audience describes who the talk is for
	Audience string `yaml:"audience"`
	// DurationMinutes is the time cap for the talk
	DurationMinutes int `yaml:"duration_minutes"`
	// TalkType is the kind of talk (e.g. "conference talk", "lightning talk")
	TalkType string `yaml:"talk_type"`
	// Event names the event the talk is for
	Event string `yaml:"event"`
}

// ServerConfig configures the HTTP analysis server
type ServerConfig struct {
	// Addr is the listen address (host:port)
	Addr string `yaml:"addr"`
	// ReadTimeout bounds request reads, including multipart deck uploads
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout bounds response writes; analysis runs can be slow
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RenderConfig configures deck rendering
type RenderConfig struct {
	// QuartoPath is the quarto binary to invoke for .qmd decks
	QuartoPath string `yaml:"quarto_path"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Model: ModelConfig{
			Default:     "claude-sonnet",
			Temperature: 0.8,
			Timeout:     3 * time.Minute,
		},
		Run: RunConfig{
			Audience:        "general technical audience",
			DurationMinutes: 30,
			TalkType:        "conference talk",
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Render: RenderConfig{
			QuartoPath: "quarto",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Model.Default == "" {
		return fmt.Errorf("model.default is required")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 1 {
		return fmt.Errorf("model.temperature must be between 0 and 1")
	}
	for name, endpoint := range c.Model.Endpoints {
		if endpoint.Provider == "" {
			return fmt.Errorf("model.endpoints.%s.provider is required", name)
		}
		if endpoint.Model == "" {
			return fmt.Errorf("model.endpoints.%s.model is required", name)
		}
	}
	if c.Run.DurationMinutes < 0 {
		return fmt.Errorf("run.duration_minutes must not be negative")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// BuildRegistry constructs the model registry described by the model section.
// An empty capabilities/endpoints table falls back to the built-in registry.
func (c *Config) BuildRegistry() *model.Registry {
	if len(c.Model.Capabilities) == 0 || len(c.Model.Endpoints) == 0 {
		registry := model.NewDefaultRegistry()
		if c.Model.Default != "" {
			registry.SetDefault(c.Model.Default)
		}
		return registry
	}

	registry := model.NewRegistry(c.Model.Capabilities, c.Model.Endpoints)
	registry.SetDefault(c.Model.Default)
	return registry
}

// LoadFromFile loads configuration from a YAML file
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

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
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

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Model
	if other.Model.Default != "" {
		c.Model.Default = other.Model.Default
	}
	if other.Model.Temperature != 0 {
		c.Model.Temperature = other.Model.Temperature
	}
	if other.Model.Timeout != 0 {
		c.Model.Timeout = other.Model.Timeout
	}
	if len(other.Model.Capabilities) > 0 {
		c.Model.Capabilities = other.Model.Capabilities
	}
	if len(other.Model.Endpoints) > 0 {
		c.Model.Endpoints = other.Model.Endpoints
	}

	// Run
	if other.Run.Audience != "" {
		c.Run.Audience = other.Run.Audience
	}
	if other.Run.DurationMinutes != 0 {
		c.Run.DurationMinutes = other.Run.DurationMinutes
	}
	if other.Run.TalkType != "" {
		c.Run.TalkType = other.Run.TalkType
	}
	if other.Run.Event != "" {
		c.Run.Event = other.Run.Event
	}

	// Server
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.ReadTimeout != 0 {
		c.Server.ReadTimeout = other.Server.ReadTimeout
	}
	if other.Server.WriteTimeout != 0 {
		c.Server.WriteTimeout = other.Server.WriteTimeout
	}

	// Render
	if other.Render.QuartoPath != "" {
		c.Render.QuartoPath = other.Render.QuartoPath
	}
}
