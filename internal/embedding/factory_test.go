package embedding

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/backend/internal/config"
)

func TestNew_SelectsProvider(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name      string
		cfg       config.Config
		wantName  string
		wantDim   int
		wantError bool
	}{
		{
			name:     "OpenAI Default Dimension",
			cfg:      config.Config{EmbeddingProvider: "openai", EmbeddingAPIKey: "k"},
			wantName: "openai",
			wantDim:  1536,
		},
		{
			name:     "HuggingFace Mixed Case",
			cfg:      config.Config{EmbeddingProvider: "HuggingFace", EmbeddingAPIKey: "k"},
			wantName: "huggingface",
			wantDim:  384,
		},
		{
			name:     "Yandex Dimension Override",
			cfg:      config.Config{EmbeddingProvider: "yandex", EmbeddingAPIKey: "k", YandexFolderID: "f", EmbeddingDimension: 256},
			wantName: "yandex",
			wantDim:  256,
		},
		{
			name:      "Missing Key",
			cfg:       config.Config{EmbeddingProvider: "openai"},
			wantError: true,
		},
		{
			name:      "Unknown Provider",
			cfg:       config.Config{EmbeddingProvider: "word2vec"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := New(context.Background(), &tt.cfg, logger)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, svc.Name())
			assert.Equal(t, tt.wantDim, svc.Dimension())
			assert.NoError(t, svc.Close())
		})
	}
}
