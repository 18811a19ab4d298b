// Package llm provides the structured-suggestion capability backed by an
// OpenAI-compatible chat completions API, with an offline fallback used when
// no credentials are configured.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"calassist/internal/config"
	"calassist/internal/models"
)

// ErrUnavailable wraps every transport, API and decoding failure so callers
// can treat the provider as simply absent.
var ErrUnavailable = errors.New("llm provider unavailable")

// Provider produces raw event drafts from a free-text instruction.
type Provider interface {
	Name() string
	SuggestEvents(ctx context.Context, instruction, nowISO, timezone string) ([]models.EventDraft, error)
}

// NewFromConfig selects a provider. Missing credentials or an unknown
// provider name degrade to the offline provider rather than failing startup.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) Provider {
	switch strings.ToLower(cfg.LLMProvider) {
	case "", "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("OPENAI_API_KEY is not configured, LLM features run in offline mode.")
			return NewOffline("openai", logger)
		}
		return NewOpenAI(logger, Options{
			Name:        "openai",
			Host:        cfg.OpenAIAPIHost,
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.OpenAITemperature,
		})
	case "openrouter":
		apiKey := cfg.OpenRouterAPIKey
		if apiKey == "" {
			apiKey = cfg.OpenAIAPIKey
		}
		if apiKey == "" {
			logger.Warn("OpenRouter credentials are missing, LLM features run in offline mode.")
			return NewOffline("openrouter", logger)
		}
		return NewOpenAI(logger, Options{
			Name:        "openrouter",
			Host:        cfg.OpenRouterAPIHost,
			APIKey:      apiKey,
			Model:       cfg.OpenAIModel,
			Temperature: cfg.OpenAITemperature,
			Headers:     map[string]string{"X-Title": "calassist"},
		})
	default:
		logger.Warn("Unknown LLM provider, running in offline mode.", "provider", cfg.LLMProvider)
		return NewOffline(cfg.LLMProvider, logger)
	}
}

// Offline is the fallback provider used when credentials are missing. It
// always returns an empty payload.
type Offline struct {
	name   string
	logger *slog.Logger
}

// NewOffline creates an Offline provider reporting under the given name.
func NewOffline(name string, logger *slog.Logger) *Offline {
	return &Offline{name: name, logger: logger}
}

func (o *Offline) Name() string { return o.name }

func (o *Offline) SuggestEvents(ctx context.Context, instruction, nowISO, timezone string) ([]models.EventDraft, error) {
	o.logger.Info("LLM provider operating in offline mode.", "provider", o.name)
	return nil, nil
}
