// Package llm provides the external language-model collaborator used by the
// executor. The engine treats the model as an unreliable remote service:
// every call carries a context deadline, and failures surface as errors the
// executor converts into degraded output.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lockstep/internal/config"
)

// ErrNotConfigured is returned when no API key is available.
var ErrNotConfigured = errors.New("llm client not configured")

// Client is the narrow completion interface the executor depends on.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// New builds a client from config. Unknown providers fall back to the
// OpenAI-compatible client, which covers most self-hosted endpoints.
func New(cfg config.LLMConfig) (Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	timeout := cfg.ParseTimeout(2 * time.Minute)

	switch strings.ToLower(cfg.Provider) {
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	case "openai", "":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
