package ai

import (
	"context"
	"fmt"

	"github.com/wolfman30/clinic-concierge/internal/config"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

// NewFromConfig builds the configured provider, chained to OpenAI as fallback
// when a key is present, and bounded by the configured timeout. A nil client
// with a nil error means no provider is configured.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *logging.Logger) (Client, error) {
	if logger == nil {
		logger = logging.Default()
	}
	var primary Client
	switch cfg.AIProvider {
	case "gemini":
		if cfg.GeminiAPIKey != "" {
			c, err := NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
			primary = c
		}
	case "openai":
		if cfg.OpenAIAPIKey != "" {
			c, err := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
			if err != nil {
				return nil, err
			}
			primary = c
		}
	case "bedrock":
		c, err := NewBedrockClientFromEnv(ctx, cfg.AWSRegion, cfg.BedrockModelID)
		if err != nil {
			return nil, err
		}
		primary = c
	case "none", "":
	default:
		return nil, fmt.Errorf("ai: unknown provider %q", cfg.AIProvider)
	}

	var fallback Client
	if cfg.AIProvider != "openai" && cfg.OpenAIAPIKey != "" {
		c, err := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
		if err != nil {
			return nil, err
		}
		fallback = c
	}

	switch {
	case primary == nil && fallback == nil:
		logger.Warn("no AI provider configured, unresolved messages fall back to clarification")
		return nil, nil
	case primary == nil:
		primary, fallback = fallback, nil
	}
	return WithTimeout(NewFallbackClient(primary, fallback, logger), cfg.AITimeout), nil
}
