// Package config handles Helion configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order:
// ./config.yaml, ~/.config/helion/config.yaml, /etc/helion/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "helion", "config.yaml"))
	}

	paths = append(paths, "/etc/helion/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Helion configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	DataDir    string           `yaml:"data_dir"`
	Database   DatabaseConfig   `yaml:"database"`
	Models     ModelsConfig     `yaml:"models"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Weather    WeatherConfig    `yaml:"weather"`
	Memory     MemoryConfig     `yaml:"memory"`
	Agent      AgentConfig      `yaml:"agent"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// DatabaseConfig selects the SQLite driver. "sqlite3" is the cgo
// driver (mattn/go-sqlite3); "sqlite" is the pure-Go modernc driver.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
}

// ModelsConfig defines the default model and which provider serves
// each named model.
type ModelsConfig struct {
	Default     string        `yaml:"default"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Available   []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to its provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, openai, anthropic, gemini
}

// OllamaConfig points at a local or remote Ollama server.
type OllamaConfig struct {
	URL string `yaml:"url"`
}

// OpenAIConfig configures any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// GeminiConfig defines Google Gemini API settings.
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"baseurl"` // Ollama URL (defaults to ollama.url)
}

// SearchConfig configures web search providers. The first configured
// provider in Default, SearXNG, Brave, Firecrawl order becomes the default.
type SearchConfig struct {
	Default    string          `yaml:"default"`
	MaxResults int             `yaml:"max_results"`
	SearXNG    SearXNGConfig   `yaml:"searxng"`
	Brave      BraveConfig     `yaml:"brave"`
	Firecrawl  FirecrawlConfig `yaml:"firecrawl"`
}

// SearXNGConfig points at a SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// FirecrawlConfig holds the Firecrawl API key and optional base URL.
type FirecrawlConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether any search provider is set up.
func (c SearchConfig) Configured() bool {
	return c.SearXNG.URL != "" || c.Brave.APIKey != "" || c.Firecrawl.APIKey != ""
}

// WeatherConfig selects the weather provider. Provider "open-meteo"
// queries the public Open-Meteo API; "canned" returns fixed reports.
type WeatherConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
}

// MemoryConfig configures long-term semantic memory.
type MemoryConfig struct {
	Enabled bool `yaml:"enabled"`
	// MaxPerUser caps how many memories store_memory keeps per user.
	MaxPerUser int `yaml:"max_per_user"`
}

// AgentConfig holds turn guardrails and prompt selection.
type AgentConfig struct {
	MaxIterations    int           `yaml:"max_iterations"`
	MaxDuration      time.Duration `yaml:"max_duration"`
	Template         string        `yaml:"template"` // react_chat, support, basic
	MaxParallelTools int           `yaml:"max_parallel_tools"`
	HistoryLimit     int           `yaml:"history_limit"`
}

// MQTTConfig configures the optional MQTT turn-event publisher.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"`
}

// Configured reports whether an MQTT broker is set.
func (c MQTTConfig) Configured() bool {
	return c.Broker != ""
}

// LoggingConfig controls log level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

// Load reads configuration from a YAML file, expanding ${VAR}
// references from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration that talks to a local Ollama server.
func Default() *Config {
	cfg := &Config{
		Listen:  ListenConfig{Port: 8080},
		DataDir: "./db",
		Models: ModelsConfig{
			Default: "llama3.1:8b",
			Available: []ModelConfig{
				{Name: "llama3.1:8b", Provider: "ollama"},
			},
		},
		Weather: WeatherConfig{Provider: "open-meteo"},
		Memory:  MemoryConfig{Enabled: true},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./db"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = "http://localhost:11434"
	}
	if c.Models.MaxTokens == 0 {
		c.Models.MaxTokens = 1024
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = c.Ollama.URL
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "nomic-embed-text"
	}
	if c.Search.MaxResults == 0 {
		c.Search.MaxResults = 2
	}
	if c.Weather.Provider == "" {
		c.Weather.Provider = "canned"
	}
	if c.Memory.MaxPerUser == 0 {
		c.Memory.MaxPerUser = 10
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = 8
	}
	if c.Agent.MaxDuration == 0 {
		c.Agent.MaxDuration = 2 * time.Minute
	}
	if c.Agent.Template == "" {
		c.Agent.Template = "react_chat"
	}
	if c.Agent.MaxParallelTools == 0 {
		c.Agent.MaxParallelTools = 4
	}
	if c.Agent.HistoryLimit == 0 {
		c.Agent.HistoryLimit = 10
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "helion"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks for settings that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("database.driver %q: must be sqlite3 or sqlite", c.Database.Driver)
	}

	if c.Models.Default == "" {
		return fmt.Errorf("models.default is required")
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "ollama":
		case "openai":
			if c.OpenAI.APIKey == "" {
				return fmt.Errorf("model %s uses openai but openai.api_key is empty", m.Name)
			}
		case "anthropic":
			if c.Anthropic.APIKey == "" {
				return fmt.Errorf("model %s uses anthropic but anthropic.api_key is empty", m.Name)
			}
		case "gemini":
			if c.Gemini.APIKey == "" {
				return fmt.Errorf("model %s uses gemini but gemini.api_key is empty", m.Name)
			}
		default:
			return fmt.Errorf("model %s: unknown provider %q", m.Name, m.Provider)
		}
	}

	switch c.Agent.Template {
	case "react_chat", "support", "basic":
	default:
		return fmt.Errorf("agent.template %q: must be react_chat, support or basic", c.Agent.Template)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be at least 1")
	}

	switch c.Weather.Provider {
	case "open-meteo", "canned":
	default:
		return fmt.Errorf("weather.provider %q: must be open-meteo or canned", c.Weather.Provider)
	}

	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format %q: must be text or json", c.Logging.Format)
	}
	return nil
}

// ProviderFor returns the provider configured for model, or "ollama"
// when the model is not listed.
func (c *Config) ProviderFor(model string) string {
	for _, m := range c.Models.Available {
		if m.Name == model {
			return m.Provider
		}
	}
	return "ollama"
}
