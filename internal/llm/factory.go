package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/skylink/internal/model"
)

// NewProvider creates a new LLM provider based on configuration.
// An empty provider name disables the narrative and returns nil.
func NewProvider(config Config) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "anthropic", "claude":
		return NewAnthropicProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the loaded configuration to an llm.Config. The
// providers share the HTTP proxy settings of the feeds.
func ConfigFromModel(llm model.LLMConfig, http model.HTTPConfig) Config {
	return Config{
		Provider:   llm.Provider,
		Model:      llm.Model,
		APIKey:     llm.APIKey,
		BaseURL:    llm.BaseURL,
		Timeout:    llm.Timeout,
		Strict:     llm.Strict,
		MaxTokens:  llm.MaxTokens,
		HTTPProxy:  http.HTTPProxy,
		HTTPSProxy: http.HTTPSProxy,
		NoProxy:    http.NoProxy,
	}
}
