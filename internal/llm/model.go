package llm

import (
	"context"
	"fmt"

	"github.com/fkaule/docpilot/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps langchaingo LLM for text generation.
type Model struct {
	llm       llms.Model
	modelName string
}

// NewModel creates the generation model from configuration.
func NewModel(cfg config.Config) (*Model, error) {
	return newModel(cfg, cfg.LLMModel)
}

// NewGuardModel creates the relevance guard model. Returns nil when no guard
// model is configured; callers treat a nil guard as "accept everything".
func NewGuardModel(cfg config.Config) (*Model, error) {
	if !cfg.GuardEnabled() {
		return nil, nil
	}
	return newModel(cfg, cfg.GuardModel)
}

func newModel(cfg config.Config, modelName string) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.AIProvider {
	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(modelName),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderOpenAI:
		if cfg.AIAPIKey == "" {
			return nil, fmt.Errorf("API key required for openai provider")
		}
		opts := []openai.Option{
			openai.WithToken(cfg.AIAPIKey),
			openai.WithModel(modelName),
		}
		if cfg.AIBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.AIBaseURL))
		}
		model, err = openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.AIProvider)
	}

	return &Model{
		llm:       model,
		modelName: modelName,
	}, nil
}

// Generate generates text based on a prompt.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	response, err := llms.GenerateFromSinglePrompt(ctx, m.llm, prompt)
	if err != nil {
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}
	return response, nil
}

// GenerateWithSystem generates text with a system prompt.
func (m *Model) GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string, opts ...llms.CallOption) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	response, err := m.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", wrapFatalError(err))
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices")
	}

	return response.Choices[0].Content, nil
}

// GenerateChat runs a full chat turn. The caller controls streaming and tool
// registration through call options.
func (m *Model) GenerateChat(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	response, err := m.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate chat: %w", wrapFatalError(err))
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}
	return response, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}
