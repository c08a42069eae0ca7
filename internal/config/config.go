package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

// Embedding providers recognised by EMBEDDING_PROVIDER.
const (
	ProviderGemini      = "gemini"
	ProviderOpenAI      = "openai"
	ProviderHuggingFace = "huggingface"
	ProviderYandex      = "yandex"
)

// Vector backends recognised by VECTOR_BACKEND.
const (
	BackendQdrant   = "qdrant"
	BackendWeaviate = "weaviate"
)

// Policies for answering when retrieval yields no context.
const (
	NoContextGeneral = "general"
	NoContextDecline = "decline"
)

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"studyrag"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"studyrag"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	EnableAPI           bool   `envconfig:"ENABLE_API" default:"true"`
	EnableIndexWorker   bool   `envconfig:"ENABLE_INDEX_WORKER" default:"true"`
	IndexingConcurrency int    `envconfig:"INDEXING_CONCURRENCY" default:"4"`
	MigrationPath       string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Embedding
	EmbeddingProvider      string  `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	EmbeddingModel         string  `envconfig:"EMBEDDING_MODEL"`
	EmbeddingAPIKey        string  `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBaseURL       string  `envconfig:"EMBEDDING_BASE_URL"`
	EmbeddingDimension     int     `envconfig:"EMBEDDING_DIMENSION"`
	EmbeddingMaxInputChars int     `envconfig:"EMBEDDING_MAX_INPUT_CHARS" default:"8000"`
	EmbeddingRateLimit     float64 `envconfig:"EMBEDDING_RATE_LIMIT" default:"0"`
	EmbeddingConcurrency   int     `envconfig:"EMBEDDING_CONCURRENCY" default:"4"`
	YandexFolderID         string  `envconfig:"YANDEX_FOLDER_ID"`

	// Vector index
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"qdrant"`
	QdrantURL      string `envconfig:"QDRANT_URL" default:"http://qdrant:6333"`
	QdrantAPIKey   string `envconfig:"QDRANT_API_KEY"`
	CollectionName string `envconfig:"COLLECTION_NAME" default:"document_chunks"`
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Chunking
	ChunkMaxLength   int `envconfig:"CHUNK_MAX_LENGTH" default:"500"`
	ChunkOverlap     int `envconfig:"CHUNK_OVERLAP" default:"50"`
	ChunkWordWindow  int `envconfig:"CHUNK_WORD_WINDOW" default:"200"`
	ChunkWordOverlap int `envconfig:"CHUNK_WORD_OVERLAP" default:"50"`

	// Retrieval
	SearchLimit          int     `envconfig:"SEARCH_LIMIT" default:"5"`
	SearchScoreThreshold float64 `envconfig:"SEARCH_SCORE_THRESHOLD" default:"0.7"`
	ContextMaxChunks     int     `envconfig:"CONTEXT_MAX_CHUNKS" default:"5"`
	ContextMaxChars      int     `envconfig:"CONTEXT_MAX_CHARS" default:"4000"`
	EmbedTimeoutSeconds  int     `envconfig:"EMBED_TIMEOUT_SECONDS" default:"10"`
	SearchTimeoutSeconds int     `envconfig:"SEARCH_TIMEOUT_SECONDS" default:"5"`
	NoContextPolicy      string  `envconfig:"NO_CONTEXT_POLICY" default:"general"`
	RerankProvider       string  `envconfig:"RERANK_PROVIDER" default:"none"`
	RerankAPIKey         string  `envconfig:"RERANK_API_KEY"`

	// Generation
	GenerationEnabled bool   `envconfig:"GENERATION_ENABLED" default:"false"`
	GeminiAPIKey      string `envconfig:"GEMINI_API_KEY"`
	GenerationModel   string `envconfig:"GENERATION_MODEL" default:"gemini-2.0-flash"`

	// Server
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`
	ServerPort      int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath    string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	MaxUploadSizeMB int64  `envconfig:"MAX_UPLOAD_SIZE_MB" default:"50"`
	UploadDir       string `envconfig:"STUDYRAG_UPLOAD_DIR" default:"./uploads"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	switch strings.ToLower(c.EmbeddingProvider) {
	case ProviderGemini, ProviderOpenAI, ProviderHuggingFace, ProviderYandex:
	case "":
		return fmt.Errorf("%w: EMBEDDING_PROVIDER", ErrMissingRequired)
	default:
		return fmt.Errorf("%w: EMBEDDING_PROVIDER %q", ErrInvalidValue, c.EmbeddingProvider)
	}
	if strings.ToLower(c.EmbeddingProvider) == ProviderYandex && c.YandexFolderID == "" {
		return fmt.Errorf("%w: YANDEX_FOLDER_ID", ErrMissingRequired)
	}

	switch strings.ToLower(c.VectorBackend) {
	case BackendQdrant:
		if c.QdrantURL == "" {
			return fmt.Errorf("%w: QDRANT_URL", ErrMissingRequired)
		}
	case BackendWeaviate:
		if c.WeaviateHost == "" {
			return fmt.Errorf("%w: WEAVIATE_HOST", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND %q", ErrInvalidValue, c.VectorBackend)
	}

	switch c.NoContextPolicy {
	case NoContextGeneral, NoContextDecline:
	default:
		return fmt.Errorf("%w: NO_CONTEXT_POLICY %q", ErrInvalidValue, c.NoContextPolicy)
	}

	if c.ChunkMaxLength <= 0 {
		return fmt.Errorf("%w: CHUNK_MAX_LENGTH must be positive", ErrInvalidValue)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxLength {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, CHUNK_MAX_LENGTH)", ErrInvalidValue)
	}
	if c.ChunkWordOverlap < 0 || c.ChunkWordOverlap >= c.ChunkWordWindow {
		return fmt.Errorf("%w: CHUNK_WORD_OVERLAP must be in [0, CHUNK_WORD_WINDOW)", ErrInvalidValue)
	}
	if c.ContextMaxChars <= 0 || c.ContextMaxChunks <= 0 {
		return fmt.Errorf("%w: context budget must be positive", ErrInvalidValue)
	}
	if c.SearchScoreThreshold < 0 || c.SearchScoreThreshold > 1 {
		return fmt.Errorf("%w: SEARCH_SCORE_THRESHOLD must be in [0, 1]", ErrInvalidValue)
	}
	if c.EmbeddingDimension < 0 {
		return fmt.Errorf("%w: EMBEDDING_DIMENSION must not be negative", ErrInvalidValue)
	}
	return nil
}

// EmbedTimeout bounds the query embedding call.
func (c *Config) EmbedTimeout() time.Duration {
	return time.Duration(c.EmbedTimeoutSeconds) * time.Second
}

// SearchTimeout bounds the vector search call.
func (c *Config) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}
