package llm

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// NewProvider creates a new LLM provider based on configuration. An empty
// provider name returns ErrNotConfigured.
func NewProvider(config Config, logger *zap.Logger) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))

	switch provider {
	case "openai":
		return NewOpenAIProvider(config, logger)

	case "anthropic", "claude":
		return NewAnthropicProvider(config, logger)

	case "ollama":
		return NewOllamaProvider(config, logger)

	case "":
		return nil, ErrNotConfigured

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}
