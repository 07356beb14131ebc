package models

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Allocation policies for header charges on lines that also state their own value
const (
	PolicyExclusive = "exclusive" // direct value OR prorated share
	PolicyAdditive  = "additive"  // direct value PLUS prorated share
)

// Config represents the service configuration
type Config struct {
	// Server config
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	Env  string `yaml:"env"` // "development" or "production"

	Log        LogConfig        `yaml:"log"`
	Allocation AllocationConfig `yaml:"allocation"`
	Batch      BatchConfig      `yaml:"batch"`
	Upload     UploadConfig     `yaml:"upload"`

	// AI config (product grouping)
	AI AIConfig `yaml:"ai"`
}

// LogConfig selects level and encoding for the zap logger
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, stderr or file path
}

// AllocationConfig controls the cost allocation engine
type AllocationConfig struct {
	Policy string `yaml:"policy"` // "exclusive" (default) or "additive"
}

// BatchConfig controls parallel document processing
type BatchConfig struct {
	Concurrency  int `yaml:"concurrency"`   // parallel documents, default 8
	MaxDocuments int `yaml:"max_documents"` // per request, default 200
}

// UploadConfig limits multipart uploads
type UploadConfig struct {
	MaxSizeMB int `yaml:"max_size_mb"` // default 20
}

// AIConfig represents AI provider configuration
type AIConfig struct {
	// OpenAI
	OpenAI OpenAIConfig `yaml:"openai"`

	// Gemini
	Gemini GeminiConfig `yaml:"gemini"`

	// Ollama (local)
	Ollama OllamaConfig `yaml:"ollama"`

	// Default provider
	DefaultProvider string `yaml:"default_provider"` // "openai", "gemini", "ollama"
}

// OpenAIConfig for OpenAI/Azure OpenAI
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"` // For custom endpoints
	Model   string `yaml:"model"`              // Default: "gpt-4o-mini"
}

// GeminiConfig for Google Gemini
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"` // Default: "gemini-1.5-flash"
}

// OllamaConfig for local Ollama
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"` // Default: "http://localhost:11434"
	Model   string `yaml:"model"`    // e.g., "llama3", "mistral"
}

// DefaultConfig returns the configuration used when no file is present
func DefaultConfig() *Config {
	return &Config{
		Port: 8080,
		Host: "0.0.0.0",
		Env:  "development",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		Allocation: AllocationConfig{Policy: PolicyExclusive},
		Batch:      BatchConfig{Concurrency: 8, MaxDocuments: 200},
		Upload:     UploadConfig{MaxSizeMB: 20},
		AI: AIConfig{
			OpenAI:          OpenAIConfig{Model: "gpt-4o-mini"},
			Gemini:          GeminiConfig{Model: "gemini-1.5-flash"},
			Ollama:          OllamaConfig{BaseURL: "http://localhost:11434", Model: "llama3"},
			DefaultProvider: "openai",
		},
	}
}

// LoadConfig reads a YAML config file over the defaults and applies
// environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
		// defaults + env
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(config)
	config.normalize()

	return config, nil
}

// applyEnv overrides config values with environment variables if present
func applyEnv(config *Config) {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}
	if host := os.Getenv("HOST"); host != "" {
		config.Host = host
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		config.Env = env
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if policy := os.Getenv("ALLOCATION_POLICY"); policy != "" {
		config.Allocation.Policy = policy
	}
	if c := os.Getenv("BATCH_CONCURRENCY"); c != "" {
		if n, err := strconv.Atoi(c); err == nil {
			config.Batch.Concurrency = n
		}
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.AI.OpenAI.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.Gemini.APIKey = apiKey
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.AI.Ollama.BaseURL = baseURL
	}
	if provider := os.Getenv("AI_PROVIDER"); provider != "" {
		config.AI.DefaultProvider = provider
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.AI.OpenAI.BaseURL = baseURL
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		config.AI.OpenAI.Model = model
	}
	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.AI.Gemini.Model = model
	}
}

func (c *Config) normalize() {
	if c.Allocation.Policy != PolicyAdditive {
		c.Allocation.Policy = PolicyExclusive
	}
	if c.Batch.Concurrency <= 0 {
		c.Batch.Concurrency = 8
	}
	if c.Batch.MaxDocuments <= 0 {
		c.Batch.MaxDocuments = 200
	}
	if c.Upload.MaxSizeMB <= 0 {
		c.Upload.MaxSizeMB = 20
	}
}
