package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/option"

	"github.com/custonfe/nfe-cost-service/internal/models"
)

// ErrNoProvider is returned when the requested provider is not configured
var ErrNoProvider = errors.New("AI provider not configured")

// Provider sends a prompt to a language model and returns the text answer
type Provider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// NewProvider creates the provider named by providerName, falling back to
// the configured default. modelName overrides the configured model.
func NewProvider(cfg models.AIConfig, providerName, modelName string) (Provider, error) {
	if providerName == "" {
		providerName = cfg.DefaultProvider
	}

	switch strings.ToLower(providerName) {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("%w: openai api key missing", ErrNoProvider)
		}
		model := modelName
		if model == "" {
			model = cfg.OpenAI.Model
		}
		return NewOpenAIProvider(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, model), nil

	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("%w: gemini api key missing", ErrNoProvider)
		}
		model := modelName
		if model == "" {
			model = cfg.Gemini.Model
		}
		return NewGeminiProvider(cfg.Gemini.APIKey, model), nil

	case "ollama":
		model := modelName
		if model == "" {
			model = cfg.Ollama.Model
		}
		return NewOllamaProvider(cfg.Ollama.BaseURL, model), nil

	default:
		return nil, fmt.Errorf("unsupported AI provider: %s", providerName)
	}
}

// ============================================================================
// OpenAI (also any OpenAI-compatible endpoint)
// ============================================================================

// OpenAIProvider talks to the chat completions API
type OpenAIProvider struct {
	client *openai.Client
	model  string
	name   string
}

// NewOpenAIProvider creates an OpenAI provider. baseURL is optional.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
		name:   "openai",
	}
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Complete sends the prompt as a single user message
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: 0.1,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s returned no choices", p.name)
	}
	return resp.Choices[0].Message.Content, nil
}

// ============================================================================
// Ollama (OpenAI-compatible /v1 endpoint)
// ============================================================================

// NewOllamaProvider creates a provider for a local Ollama server
func NewOllamaProvider(baseURL, model string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}

	p := NewOpenAIProvider("ollama", baseURL, model)
	p.name = "ollama"
	return p
}

// ============================================================================
// Gemini
// ============================================================================

// GeminiProvider talks to Google Gemini
type GeminiProvider struct {
	apiKey string
	model  string
}

// NewGeminiProvider creates a Gemini provider
func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	return &GeminiProvider{apiKey: apiKey, model: model}
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Complete asks Gemini for a JSON answer
func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(p.model)
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}

	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
		break
	}
	if b.Len() == 0 {
		return "", errors.New("gemini returned an empty response")
	}
	return b.String(), nil
}
