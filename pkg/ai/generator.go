package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// TextGenerator generates text from a system prompt and user prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// DefaultTimeout bounds one generation call when no timeout is configured.
const DefaultTimeout = 120 * time.Second

// ErrEmptyCompletion is returned when a provider answers without text.
var ErrEmptyCompletion = errors.New("empty completion")

// GeneratorConfig selects and configures a provider.
type GeneratorConfig struct {
	Provider string
	BaseURL  string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// EffectiveTimeout is the per-call budget the generator client enforces.
func (c GeneratorConfig) EffectiveTimeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// NewTextGenerator builds the generator for cfg.Provider. Empty provider means OpenAI.
func NewTextGenerator(cfg GeneratorConfig) (TextGenerator, error) {
	client := &http.Client{Timeout: cfg.EffectiveTimeout()}
	var (
		gen TextGenerator
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		gen, err = NewOpenAIGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, client)
	case ProviderGemini:
		gen, err = NewGeminiGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model, client)
	case ProviderOllama:
		gen, err = NewOllamaGenerator(cfg.BaseURL, cfg.Model, client)
	default:
		return nil, fmt.Errorf("unsupported generation provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return gen, nil
}
