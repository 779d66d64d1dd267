// Package oracle talks to the language model that classifies emails. The
// pipeline only sees the Completer interface.
package oracle

import (
	"context"
	"fmt"
	"strings"

	"email_forwarder/internal/config"
	"email_forwarder/internal/retry"

	"github.com/rs/zerolog/log"
)

// Completer turns a prompt into the model's text answer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// New builds the completer selected by the configuration, wrapped with policy.
func New(ctx context.Context, cfg *config.Configuration, policy retry.Config) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.OracleProvider))
	if provider == "" {
		provider = ProviderOpenAI
	}

	var base Completer
	switch provider {
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, &config.ConfigurationError{Field: "openai_api_key", Reason: "required for the openai provider"}
		}
		base = NewOpenAIClient(OpenAIConfig{APIKey: cfg.OpenAIAPIKey, Model: cfg.OracleModel})
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, &config.ConfigurationError{Field: "gemini_api_key", Reason: "required for the gemini provider"}
		}
		client, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.OracleModel)
		if err != nil {
			return nil, err
		}
		base = client
	default:
		return nil, &config.ConfigurationError{
			Field:  "oracle_provider",
			Reason: fmt.Sprintf("unknown provider %q", cfg.OracleProvider),
		}
	}

	log.Debug().Str("provider", provider).Str("model", cfg.OracleModel).Msg("Oracle client ready")
	return WithRetry(base, policy), nil
}

type retrying struct {
	next   Completer
	policy retry.Config
}

// WithRetry wraps a completer so every call gets the policy's timeout and
// retries on transient failures.
func WithRetry(next Completer, policy retry.Config) Completer {
	return &retrying{next: next, policy: policy}
}

func (r *retrying) Complete(ctx context.Context, prompt string) (string, error) {
	return retry.WithRetry(ctx, r.policy, func(ctx context.Context) (string, error) {
		return r.next.Complete(ctx, prompt)
	})
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
