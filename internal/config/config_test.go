package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/backend/internal/config"
)

func TestLoadConfig(t *testing.T) {
	// Set env var directly to test envconfig logic
	os.Setenv("DB_HOST", "test-host")
	defer os.Unsetenv("DB_HOST")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "test-host", cfg.DBHost)
}

func TestLoadConfig_FromEnvFile(t *testing.T) {
	content := []byte("DB_HOST=loaded-from-file")
	err := os.WriteFile(".env", content, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(".env")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "loaded-from-file", cfg.DBHost)
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, config.ProviderGemini, cfg.EmbeddingProvider)
	assert.Equal(t, config.BackendQdrant, cfg.VectorBackend)
	assert.Equal(t, 500, cfg.ChunkMaxLength)
	assert.Equal(t, 50, cfg.ChunkOverlap)
	assert.Equal(t, 200, cfg.ChunkWordWindow)
	assert.Equal(t, 50, cfg.ChunkWordOverlap)
	assert.Equal(t, 5, cfg.SearchLimit)
	assert.InDelta(t, 0.7, cfg.SearchScoreThreshold, 1e-9)
	assert.Equal(t, 8000, cfg.EmbeddingMaxInputChars)
	assert.Equal(t, config.NoContextGeneral, cfg.NoContextPolicy)
	assert.Equal(t, 10*time.Second, cfg.EmbedTimeout())
	assert.Equal(t, 5*time.Second, cfg.SearchTimeout())
}

func TestLoadConfig_Toggles(t *testing.T) {
	os.Setenv("ENABLE_API", "false")
	os.Setenv("ENABLE_INDEX_WORKER", "true")
	os.Setenv("INDEXING_CONCURRENCY", "10")
	defer os.Unsetenv("ENABLE_API")
	defer os.Unsetenv("ENABLE_INDEX_WORKER")
	defer os.Unsetenv("INDEXING_CONCURRENCY")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.False(t, cfg.EnableAPI)
	assert.True(t, cfg.EnableIndexWorker)
	assert.Equal(t, 10, cfg.IndexingConcurrency)
}

func TestLoadConfig_ProviderSelection(t *testing.T) {
	os.Setenv("EMBEDDING_PROVIDER", "openai")
	os.Setenv("EMBEDDING_DIMENSION", "1536")
	defer os.Unsetenv("EMBEDDING_PROVIDER")
	defer os.Unsetenv("EMBEDDING_DIMENSION")

	cfg, err := config.Load()
	assert.NoError(t, err)
	assert.Equal(t, "openai", cfg.EmbeddingProvider)
	assert.Equal(t, 1536, cfg.EmbeddingDimension)
}

func TestLoadConfig_InvalidProvider(t *testing.T) {
	os.Setenv("EMBEDDING_PROVIDER", "word2vec")
	defer os.Unsetenv("EMBEDDING_PROVIDER")

	_, err := config.Load()
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}
