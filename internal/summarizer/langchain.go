package summarizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Providers served through langchaingo.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// LangchainGenerator adapts any langchaingo model.
type LangchainGenerator struct {
	llm llms.Model
}

func NewLangchainGenerator(model llms.Model) *LangchainGenerator {
	return &LangchainGenerator{llm: model}
}

// NewLangchainModel builds an OpenAI or Ollama model.
func NewLangchainModel(provider, model, apiKey, baseURL string) (llms.Model, error) {
	switch provider {
	case ProviderOllama:
		opts := []ollama.Option{ollama.WithModel(model)}
		if baseURL != "" {
			opts = append(opts, ollama.WithServerURL(baseURL))
		}
		m, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return m, nil

	case ProviderOpenAI:
		if apiKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		opts := []openai.Option{openai.WithToken(apiKey), openai.WithModel(model)}
		if baseURL != "" {
			opts = append(opts, openai.WithBaseURL(baseURL))
		}
		m, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return m, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// Generate sends exactly one system and one human message.
func (g *LangchainGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	response, err := g.llm.GenerateContent(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate with system: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("no response choices")
	}
	return response.Choices[0].Content, nil
}
