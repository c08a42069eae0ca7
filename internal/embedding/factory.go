package embedding

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"studyrag/backend/internal/adapter/gemini"
	"studyrag/backend/internal/adapter/huggingface"
	"studyrag/backend/internal/adapter/openai"
	"studyrag/backend/internal/adapter/yandex"
	"studyrag/backend/internal/config"
)

// New builds the Service for the provider named by EMBEDDING_PROVIDER. The
// choice is made once; there is no runtime switching.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	p, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	logger.Info("embedding provider selected", "provider", p.Name(), "dimension", p.Dimension())

	return NewService(p,
		WithDimension(cfg.EmbeddingDimension),
		WithMaxInputChars(cfg.EmbeddingMaxInputChars),
		WithRateLimit(cfg.EmbeddingRateLimit, cfg.EmbeddingConcurrency),
		WithLogger(logger),
	), nil
}

func newProvider(ctx context.Context, cfg *config.Config) (Provider, error) {
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case config.ProviderGemini:
		key := cfg.EmbeddingAPIKey
		if key == "" {
			key = cfg.GeminiAPIKey
		}
		return gemini.NewEmbedder(ctx, key, cfg.EmbeddingModel, cfg.EmbeddingDimension)
	case config.ProviderOpenAI:
		return openai.NewEmbedder(openai.Config{
			APIKey:    cfg.EmbeddingAPIKey,
			BaseURL:   cfg.EmbeddingBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	case config.ProviderHuggingFace:
		return huggingface.NewEmbedder(huggingface.Config{
			APIKey:    cfg.EmbeddingAPIKey,
			BaseURL:   cfg.EmbeddingBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	case config.ProviderYandex:
		return yandex.NewEmbedder(yandex.Config{
			APIKey:    cfg.EmbeddingAPIKey,
			FolderID:  cfg.YandexFolderID,
			BaseURL:   cfg.EmbeddingBaseURL,
			Model:     cfg.EmbeddingModel,
			Dimension: cfg.EmbeddingDimension,
		})
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
}

// Close releases the provider's client if it holds one.
func (s *Service) Close() error {
	if c, ok := s.provider.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
