package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"studyrag/backend/features/document"
	"studyrag/backend/features/job"
	"studyrag/backend/features/mcp"
	"studyrag/backend/features/query"
	"studyrag/backend/features/stats"
	"studyrag/backend/internal/adapter/gemini"
	"studyrag/backend/internal/adapter/reranker"
	"studyrag/backend/internal/config"
	"studyrag/backend/internal/embedding"
	"studyrag/backend/internal/extract"
	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/retrieval"
	"studyrag/backend/internal/storage"
	"studyrag/backend/internal/text"
	"studyrag/backend/internal/vector"
	"studyrag/backend/internal/worker"
)

const (
	// indexMsgTimeout is how long nsqd waits for FIN before redelivering.
	indexMsgTimeout = 15 * time.Minute
	// indexJobTimeout leaves room to record the outcome before redelivery.
	indexJobTimeout = indexMsgTimeout - time.Minute
)

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

type App struct {
	Handler       http.Handler
	Jobs          *job.Service
	Documents     *document.Service
	Query         *query.Service
	IndexConsumer *worker.IndexConsumer

	cfg    *config.Config
	logger *slog.Logger
	close  func()
}

func New(
	ctx context.Context,
	cfg *config.Config,
	db *sql.DB,
	idx vector.Index,
	emb *embedding.Service,
	blobs *storage.LocalStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
) (*App, error) {
	// Feature: Job
	jobRepo := job.NewPostgresRepo(db)
	jobService := job.NewService(jobRepo, taskPub, logger)
	jobHandler := job.NewHandler(jobService)

	// Feature: Document
	documentService := document.NewService(blobs, taskPub, idx, jobService, logger)
	documentHandler := document.NewHandler(documentService, cfg.MaxUploadSizeMB)

	// Feature: Stats
	statsHandler := stats.NewHandler(idx, jobRepo)

	// Feature: Query
	queryService, closeQuery, err := NewQueryService(ctx, cfg, emb, idx)
	if err != nil {
		return nil, err
	}
	queryHandler := query.NewHandler(queryService)

	// Feature: MCP
	mcpHandler := mcp.NewHandler(queryService, idx)

	// Worker
	indexer := NewIndexer(cfg, blobs, emb, idx)
	indexConsumer := worker.NewIndexConsumer(indexer, jobService, indexJobTimeout)

	// Routes
	mux := http.NewServeMux()
	cors := middleware.CORS

	mux.Handle("POST /owners/{ownerID}/documents", middleware.CorrelationID(cors(documentHandler.Upload)))
	mux.Handle("DELETE /owners/{ownerID}/documents/{id}", middleware.CorrelationID(cors(documentHandler.Delete)))
	mux.Handle("GET /owners/{ownerID}/stats", middleware.CorrelationID(cors(statsHandler.GetStats)))
	mux.Handle("GET /owners/{ownerID}/jobs", middleware.CorrelationID(cors(jobHandler.ListByOwner)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(cors(jobHandler.ListFailed)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(cors(jobHandler.Retry)))

	mux.Handle("POST /query", middleware.CorrelationID(cors(queryHandler.Ask)))

	mux.Handle("POST /mcp", middleware.CorrelationID(mcpHandler))
	mux.Handle("GET /mcp/sse", middleware.CorrelationID(http.HandlerFunc(mcpHandler.HandleSSE)))
	mux.Handle("POST /mcp/messages", middleware.CorrelationID(http.HandlerFunc(mcpHandler.HandleMessage)))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	return &App{
		Handler:       mux,
		Jobs:          jobService,
		Documents:     documentService,
		Query:         queryService,
		IndexConsumer: indexConsumer,
		cfg:           cfg,
		logger:        logger,
		close:         closeQuery,
	}, nil
}

// NewIndexer builds the indexing pipeline from configuration.
func NewIndexer(cfg *config.Config, blobs worker.BlobOpener, emb *embedding.Service, idx vector.Index) *worker.Indexer {
	chunker := text.NewChunker(
		text.WithMaxChunkLength(cfg.ChunkMaxLength),
		text.WithOverlap(cfg.ChunkOverlap),
		text.WithWordWindow(cfg.ChunkWordWindow),
		text.WithWordOverlap(cfg.ChunkWordOverlap),
	)
	return worker.NewIndexer(blobs, extract.New(cfg.MaxUploadSizeMB<<20), chunker, emb, idx, cfg.EmbeddingConcurrency)
}

// NewQueryService wires retrieval, the optional reranker and the optional
// Gemini generator. The returned func releases the generator client.
func NewQueryService(ctx context.Context, cfg *config.Config, emb *embedding.Service, idx vector.Index) (*query.Service, func(), error) {
	policy, err := retrieval.ParseFallbackPolicy(cfg.NoContextPolicy)
	if err != nil {
		return nil, nil, err
	}

	queryLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
	if err != nil {
		slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		queryLogger = retrieval.NewQueryLogger(os.Stdout)
	}

	var rr retrieval.Reranker
	if c := reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey); c.Enabled() {
		rr = c
	}

	retrievalService := retrieval.NewService(emb, idx, rr, retrieval.Config{
		SearchLimit:    cfg.SearchLimit,
		ScoreThreshold: cfg.SearchScoreThreshold,
		MaxChunks:      cfg.ContextMaxChunks,
		MaxChars:       cfg.ContextMaxChars,
		EmbedTimeout:   cfg.EmbedTimeout(),
		SearchTimeout:  cfg.SearchTimeout(),
	}, queryLogger)

	if !cfg.GenerationEnabled {
		return query.NewService(retrievalService, nil, policy), func() {}, nil
	}

	gen, err := gemini.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerationModel)
	if err != nil {
		return nil, nil, fmt.Errorf("gemini generator error: %w", err)
	}
	closeGen := func() {
		if err := gen.Close(); err != nil {
			slog.Warn("failed to close gemini generator", "error", err)
		}
	}
	return query.NewService(retrievalService, gen, policy), closeGen, nil
}

// Run serves HTTP and consumes index tasks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	var consumer *nsq.Consumer
	if a.cfg.EnableIndexWorker {
		c, err := a.startConsumer()
		if err != nil {
			return err
		}
		consumer = c
	}

	var runErr error
	if a.cfg.EnableAPI {
		runErr = a.serve(ctx)
	} else {
		<-ctx.Done()
	}

	if consumer != nil {
		consumer.Stop()
		<-consumer.StopChan
		a.logger.Info("index consumer stopped")
	}
	return runErr
}

func (a *App) startConsumer() (*nsq.Consumer, error) {
	concurrency := a.cfg.IndexingConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	consumer, err := nsq.NewConsumer(config.TopicIndexTask, config.ChannelIndexer, consumerConfig(concurrency))
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddConcurrentHandlers(a.IndexConsumer, concurrency)

	if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("failed to connect to NSQLookupd: %w", err)
	}
	a.logger.Info("index consumer connected", "topic", config.TopicIndexTask, "channel", config.ChannelIndexer, "concurrency", concurrency)
	return consumer, nil
}

func consumerConfig(concurrency int) *nsq.Config {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = concurrency
	nsqCfg.MsgTimeout = indexMsgTimeout
	return nsqCfg
}

func (a *App) serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "port", a.cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down server...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown failed", "error", err)
		return err
	}
	return nil
}
