package llm

import (
	"fmt"
	"strings"

	"github.com/jweetan/newsvet/internal/model"
)

// NewProvider creates a reasoning-engine provider based on configuration
func NewProvider(config model.LLMConfig) (Provider, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// NewEmbedder creates an embedding provider based on configuration.
// Anthropic exposes no embeddings API and is rejected here.
func NewEmbedder(config model.EmbeddingConfig) (Embedder, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIEmbedder(config)

	case "ollama":
		return NewOllamaEmbedder(config)

	case "anthropic", "claude":
		return nil, fmt.Errorf("anthropic has no embeddings API; use openai or ollama for embeddings")

	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, ollama)", config.Provider)
	}
}
