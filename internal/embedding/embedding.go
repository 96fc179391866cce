// Package embedding turns query text into vectors for similarity search.
package embedding

import (
	"context"
	"fmt"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/config"
)

// Embedder returns a fixed-dimension vector for text
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// New builds the embedder selected by cfg.Provider
func New(ctx context.Context, cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "genai":
		return NewGenAIEmbedder(ctx, cfg.APIKey, cfg.Model)
	case "openai", "":
		return NewHTTPEmbedder(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
