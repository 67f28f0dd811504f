// Package llm provides text-generation backends for narrative requests.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/opensource-finance/fraudlens/internal/domain"
)

// ErrNotConfigured is returned by the Unavailable generator.
var ErrNotConfigured = errors.New("text generation is not configured")

// Provider names.
const (
	ProviderOpenAI      = "openai"
	ProviderGemini      = "gemini"
	ProviderUnavailable = "unavailable"
)

// New creates a text generator based on configuration.
// A provider without an API key yields Unavailable so that narratives
// degrade to inline failure text instead of blocking startup.
func New(cfg domain.NarrativeConfig) (domain.TextGenerator, error) {
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" {
			return Unavailable{Reason: "missing OpenAI API key"}, nil
		}
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, &http.Client{Timeout: cfg.Timeout}), nil

	case ProviderGemini:
		if cfg.APIKey == "" {
			return Unavailable{Reason: "missing Gemini API key"}, nil
		}
		return NewGeminiClient(context.Background(), cfg.APIKey)

	case ProviderUnavailable:
		return Unavailable{}, nil

	default:
		return nil, fmt.Errorf("unsupported narrative provider: %s", cfg.Provider)
	}
}

// Unavailable fails every request with ErrNotConfigured.
type Unavailable struct {
	Reason string
}

// Generate implements domain.TextGenerator.
func (u Unavailable) Generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	if u.Reason != "" {
		return "", fmt.Errorf("%w: %s", ErrNotConfigured, u.Reason)
	}
	return "", ErrNotConfigured
}
