// Package embedding provides text embedding backends and caching.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/otasuke/internal/config"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// New builds the embedder selected by cfg.Provider, wrapped in a cache when
// cfg.CacheSize is positive. When the provider cannot start (missing API key, no
// ONNX runtime) it falls back to the deterministic MockEmbedder and logs a warning.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		base Embedder
		err  error
	)
	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
	case "onnx":
		base, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
	case "mock", "":
		base = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: openai, onnx, mock)", cfg.Provider)
	}
	if err != nil {
		logger.Warn("embedding provider unavailable, falling back to mock embedder",
			zap.String("provider", cfg.Provider), zap.Error(err))
		base = NewMockEmbedder(cfg.Dimensions)
	}
	if cfg.CacheSize <= 0 {
		return base, nil
	}
	cached, err := NewCachedEmbedder(base, cfg.CacheSize)
	if err != nil {
		_ = base.Close()
		return nil, err
	}
	return cached, nil
}
