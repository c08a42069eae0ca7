package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"studyrag/backend/internal/adapter/qdrant"
	wstore "studyrag/backend/internal/adapter/weaviate"
	"studyrag/backend/internal/config"
	"studyrag/backend/internal/embedding"
	"studyrag/backend/internal/storage"
	"studyrag/backend/internal/vector"
)

type Dependencies struct {
	DB          *sql.DB
	Index       vector.Index
	Embedder    *embedding.Service
	Blobs       *storage.LocalStore
	NSQProducer *nsq.Producer
}

func Bootstrap(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := Migrate(db, cfg.MigrationPath); err != nil {
		db.Close()
		return nil, err
	}

	emb, err := embedding.New(ctx, cfg, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("embedding provider error: %w", err)
	}

	idx, err := NewIndex(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := EnsureCollectionWithRetry(ctx, idx, emb.Dimension(), cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		db.Close()
		return nil, fmt.Errorf("vector collection error: %w", err)
	}

	blobs, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}

	createTopics(cfg.NSQDHTTP)

	return &Dependencies{
		DB:          db,
		Index:       idx,
		Embedder:    emb,
		Blobs:       blobs,
		NSQProducer: producer,
	}, nil
}

func (d *Dependencies) Close() {
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	if d.Embedder != nil {
		if err := d.Embedder.Close(); err != nil {
			slog.Warn("failed to close embedding provider", "error", err)
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}

// OpenDB connects to Postgres, retrying the ping while the database starts.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			return db, nil
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return db, nil
}

func Migrate(db *sql.DB, path string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(path, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up error: %w", err)
	}
	return nil
}

// NewIndex returns the vector backend named by VECTOR_BACKEND.
func NewIndex(cfg *config.Config) (vector.Index, error) {
	switch strings.ToLower(cfg.VectorBackend) {
	case config.BackendQdrant:
		return qdrant.NewStore(qdrant.Config{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.CollectionName,
		}), nil
	case config.BackendWeaviate:
		client, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, fmt.Errorf("weaviate client error: %w", err)
		}
		return wstore.NewStore(client, cfg.CollectionName), nil
	}
	return nil, fmt.Errorf("%w: VECTOR_BACKEND %q", config.ErrInvalidValue, cfg.VectorBackend)
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIndexTask)
	}()
}

// EnsureCollectionWithRetry keeps calling EnsureCollection while the vector
// backend starts up.
func EnsureCollectionWithRetry(ctx context.Context, idx vector.Index, dimension, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = idx.EnsureCollection(ctx, dimension); err == nil {
			return nil
		}
		if errors.Is(err, vector.ErrDimensionMismatch) {
			return err
		}
		if i < attempts-1 {
			slog.Warn("failed to ensure vector collection, retrying...", "attempt", i+1, "error", err)
			time.Sleep(delay)
		}
	}
	return err
}
