package summarizer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

const DefaultGeminiModel = "gemini-2.5-flash"

type generateFunc func(ctx context.Context, apiKey, model, system, user string) (string, error)

// GeminiGenerator calls Gemini and rotates through API keys on rate limits.
type GeminiGenerator struct {
	apiKeys []string
	model   string
	l       logger.Logger
	call    generateFunc

	mu         sync.Mutex
	currentKey int
}

// NewGeminiGenerator creates a generator that rotates through the supplied API keys.
func NewGeminiGenerator(apiKeys []string, model string, l logger.Logger) (*GeminiGenerator, error) {
	if len(apiKeys) == 0 {
		return nil, errors.New("gemini: at least one API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{
		apiKeys: apiKeys,
		model:   model,
		l:       l.With("component", "gemini"),
		call:    callGemini,
	}, nil
}

// Generate rotates to the next key on 429 / quota errors until every key was tried once.
func (g *GeminiGenerator) Generate(ctx context.Context, system, user string) (string, error) {
	var lastErr error

	for range len(g.apiKeys) {
		idx, key := g.key()

		text, err := g.call(ctx, key, g.model, system, user)
		if err == nil {
			return text, nil
		}
		if !isRateLimited(err) {
			return "", err
		}

		g.l.Warn(ctx, "Key %d rate limited, rotating...", idx+1)
		g.rotateKey(idx)
		lastErr = err
	}

	return "", fmt.Errorf("all API keys exhausted: %w", lastErr)
}

func (g *GeminiGenerator) key() (int, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentKey, g.apiKeys[g.currentKey]
}

// rotateKey advances past idx unless another caller already did.
func (g *GeminiGenerator) rotateKey(idx int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.currentKey == idx {
		g.currentKey = (g.currentKey + 1) % len(g.apiKeys)
	}
}

func isRateLimited(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

func callGemini(ctx context.Context, apiKey, model, system, user string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
	}
	result, err := client.Models.GenerateContent(ctx, model, genai.Text(user), config)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil {
		var text string
		for _, part := range result.Candidates[0].Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
		return text, nil
	}

	return "", errors.New("empty response from Gemini")
}
