package retrieval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"studyrag/backend/internal/embedding"
	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/vector"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Reranker interface {
	Rerank(ctx context.Context, query string, docs []string) ([]int, error)
}

type Config struct {
	SearchLimit    int
	ScoreThreshold float64
	MaxChunks      int
	MaxChars       int
	EmbedTimeout   time.Duration
	SearchTimeout  time.Duration
}

// Result is what a query workflow needs to build a prompt. Degraded reports
// that embedding or search failed and the empty context is not a real miss.
type Result struct {
	Context  AssembledContext `json:"context"`
	Passages []Passage        `json:"passages"`
	Degraded bool             `json:"degraded"`
}

type Service struct {
	embedder Embedder
	index    vector.Index
	reranker Reranker
	cfg      Config
	logger   *QueryLogger
}

// NewService wires retrieval. reranker and logger may be nil.
func NewService(e Embedder, idx vector.Index, r Reranker, cfg Config, l *QueryLogger) *Service {
	return &Service{embedder: e, index: idx, reranker: r, cfg: cfg, logger: l}
}

// RetrieveContext embeds query, searches the owner's chunks (optionally one
// document) and assembles a bounded context. Provider and index failures,
// timeouts included, degrade to a no-context result instead of an error; only
// a blank query is rejected.
func (s *Service) RetrieveContext(ctx context.Context, ownerID int64, query string, documentID *int64) (Result, error) {
	if strings.TrimSpace(query) == "" {
		return Result{}, embedding.ErrEmptyInput
	}

	start := time.Now()
	res := s.retrieve(ctx, ownerID, query, documentID)

	if s.logger != nil {
		s.logger.Log(QueryLogEntry{
			Query:         query,
			OwnerID:       ownerID,
			DocumentID:    documentID,
			NumResults:    len(res.Passages),
			ChunksUsed:    res.Context.ChunksUsed,
			NoContext:     res.Context.NoContext,
			Degraded:      res.Degraded,
			Duration:      time.Since(start),
			CorrelationID: middleware.GetCorrelationID(ctx),
		})
	}
	return res, nil
}

func (s *Service) retrieve(ctx context.Context, ownerID int64, query string, documentID *int64) Result {
	vec, err := s.embedQuery(ctx, query)
	if err != nil {
		slog.WarnContext(ctx, "query embedding failed, continuing without context", "owner_id", ownerID, "error", err)
		return Result{Context: Assemble(nil, s.cfg.MaxChars, s.cfg.MaxChunks), Degraded: true}
	}

	hits, err := s.search(ctx, vec, vector.Filter{OwnerID: ownerID, DocumentID: documentID})
	if err != nil {
		slog.WarnContext(ctx, "vector search failed, continuing without context", "owner_id", ownerID, "error", err)
		return Result{Context: Assemble(nil, s.cfg.MaxChars, s.cfg.MaxChunks), Degraded: true}
	}

	passages := make([]Passage, 0, len(hits))
	for _, h := range hits {
		passages = append(passages, Passage{
			Text:          h.Payload.Text,
			Score:         h.Score,
			DocumentID:    h.Payload.DocumentID,
			DocumentTitle: h.Payload.DocumentTitle,
			ChunkIndex:    h.Payload.ChunkIndex,
		})
	}
	passages = s.rerank(ctx, query, passages)

	assembled := Assemble(passages, s.cfg.MaxChars, s.cfg.MaxChunks)
	slog.DebugContext(ctx, "context assembled",
		"owner_id", ownerID, "hits", len(hits), "chunks_used", assembled.ChunksUsed, "truncated", assembled.Truncated)

	return Result{Context: assembled, Passages: passages[:assembled.ChunksUsed]}
}

func (s *Service) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if s.cfg.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.EmbedTimeout)
		defer cancel()
	}
	return s.embedder.Embed(ctx, query)
}

func (s *Service) search(ctx context.Context, vec []float32, filter vector.Filter) ([]vector.ScoredPoint, error) {
	if s.cfg.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SearchTimeout)
		defer cancel()
	}
	return s.index.Search(ctx, vec, filter, s.cfg.SearchLimit, s.cfg.ScoreThreshold)
}

// rerank reorders passages; on any reranker failure the engine order stands.
func (s *Service) rerank(ctx context.Context, query string, passages []Passage) []Passage {
	if s.reranker == nil || len(passages) < 2 {
		return passages
	}

	docs := make([]string, len(passages))
	for i, p := range passages {
		docs[i] = p.Text
	}
	indices, err := s.reranker.Rerank(ctx, query, docs)
	if err != nil || len(indices) == 0 {
		if err != nil {
			slog.WarnContext(ctx, "rerank failed, keeping search order", "error", err)
		}
		return passages
	}

	out := make([]Passage, 0, len(indices))
	for _, idx := range indices {
		if idx >= 0 && idx < len(passages) {
			out = append(out, passages[idx])
		}
	}
	return out
}
