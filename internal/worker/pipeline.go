package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"studyrag/backend/internal/embedding"
	"studyrag/backend/internal/extract"
	"studyrag/backend/internal/text"
	"studyrag/backend/internal/vector"
)

type JobStatus string

const (
	StatusCompleted JobStatus = "completed"
	// StatusPartial means some chunks were skipped after embedding errors.
	StatusPartial JobStatus = "partial"
	StatusFailed  JobStatus = "failed"
	// StatusEmpty means the document had no text to index.
	StatusEmpty JobStatus = "empty"
)

var ErrNoChunksEmbedded = errors.New("no chunk could be embedded")

type TextExtractor interface {
	Extract(ctx context.Context, r io.Reader, mediaType string) (string, error)
}

type Splitter interface {
	Split(text string) []string
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

type BlobOpener interface {
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
}

// ChunkResult is the outcome for one chunk. Err is set when it was skipped.
type ChunkResult struct {
	Index  int
	Length int
	Err    error
}

// JobSummary aggregates one document's indexing run.
type JobSummary struct {
	DocumentID    int64
	OwnerID       int64
	Status        JobStatus
	ChunksTotal   int
	ChunksIndexed int
	Skipped       []ChunkResult
	Err           error
	Duration      time.Duration
}

// Indexer runs extract, chunk, embed and upsert for a single document.
type Indexer struct {
	blobs       BlobOpener
	extractor   TextExtractor
	chunker     Splitter
	embedder    Embedder
	index       vector.Index
	concurrency int
}

func NewIndexer(blobs BlobOpener, ex TextExtractor, ch Splitter, em Embedder, idx vector.Index, concurrency int) *Indexer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Indexer{
		blobs:       blobs,
		extractor:   ex,
		chunker:     ch,
		embedder:    em,
		index:       idx,
		concurrency: concurrency,
	}
}

// IndexStored reads the document from the blob store and indexes it.
func (ix *Indexer) IndexStored(ctx context.Context, doc DocumentMeta) JobSummary {
	rc, err := ix.blobs.Open(ctx, doc.StorageRef)
	if err != nil {
		return failed(doc, fmt.Errorf("open %s: %w", doc.StorageRef, err), time.Now())
	}
	defer rc.Close()
	return ix.Index(ctx, doc, rc)
}

// Index never returns a bare error: every outcome, failures included, is a
// JobSummary so callers can record it.
func (ix *Indexer) Index(ctx context.Context, doc DocumentMeta, r io.Reader) JobSummary {
	start := time.Now()

	raw, err := ix.extractor.Extract(ctx, r, doc.MediaType)
	if errors.Is(err, extract.ErrNoText) {
		slog.InfoContext(ctx, "document has no extractable text", "document_id", doc.ID)
		return JobSummary{DocumentID: doc.ID, OwnerID: doc.OwnerID, Status: StatusEmpty, Duration: time.Since(start)}
	}
	if err != nil {
		return failed(doc, fmt.Errorf("extract: %w", err), start)
	}

	chunks := ix.chunker.Split(text.Normalize(raw))
	if len(chunks) == 0 {
		return JobSummary{DocumentID: doc.ID, OwnerID: doc.OwnerID, Status: StatusEmpty, Duration: time.Since(start)}
	}

	if err := ix.index.EnsureCollection(ctx, ix.embedder.Dimension()); err != nil {
		return failed(doc, fmt.Errorf("ensure collection: %w", err), start)
	}

	results, vectors, err := ix.embedAll(ctx, chunks)
	if err != nil {
		s := failed(doc, err, start)
		s.ChunksTotal = len(chunks)
		return s
	}

	points := make([]vector.Point, 0, len(chunks))
	var skipped []ChunkResult
	for i, res := range results {
		if res.Err != nil {
			skipped = append(skipped, res)
			slog.WarnContext(ctx, "chunk skipped", "document_id", doc.ID, "chunk_index", i, "error", res.Err)
			continue
		}
		points = append(points, vector.Point{
			ID:     vector.PointID(doc.ID, i),
			Vector: vectors[i],
			Payload: vector.Payload{
				OwnerID:       doc.OwnerID,
				DocumentID:    doc.ID,
				DocumentTitle: doc.Title,
				ChunkIndex:    i,
				Text:          chunks[i],
				ChunkLength:   res.Length,
			},
		})
	}

	summary := JobSummary{
		DocumentID:  doc.ID,
		OwnerID:     doc.OwnerID,
		ChunksTotal: len(chunks),
		Skipped:     skipped,
	}

	if len(points) == 0 {
		summary.Status = StatusFailed
		summary.Err = fmt.Errorf("%w: %d chunks", ErrNoChunksEmbedded, len(chunks))
		if len(skipped) > 0 {
			summary.Err = fmt.Errorf("%w: last error: %w", summary.Err, skipped[len(skipped)-1].Err)
		}
		summary.Duration = time.Since(start)
		return summary
	}

	if err := ix.index.Upsert(ctx, points); err != nil {
		summary.Status = StatusFailed
		summary.Err = fmt.Errorf("upsert: %w", err)
		summary.Duration = time.Since(start)
		return summary
	}

	// Points past the new chunk count belong to an earlier, longer run.
	stale := vector.Filter{OwnerID: doc.OwnerID, DocumentID: &doc.ID, FromChunk: len(chunks)}
	if err := ix.index.DeleteByFilter(ctx, stale); err != nil {
		slog.WarnContext(ctx, "failed to remove stale chunks", "document_id", doc.ID, "from_chunk", len(chunks), "error", err)
	}

	summary.ChunksIndexed = len(points)
	summary.Status = StatusCompleted
	if len(skipped) > 0 {
		summary.Status = StatusPartial
	}
	summary.Duration = time.Since(start)
	return summary
}

// embedAll embeds chunks with at most ix.concurrency calls in flight. Chunk
// failures are recorded in the results; a dimension mismatch or a canceled
// job aborts the whole run.
func (ix *Indexer) embedAll(ctx context.Context, chunks []string) ([]ChunkResult, [][]float32, error) {
	results := make([]ChunkResult, len(chunks))
	vectors := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)

	for i, chunk := range chunks {
		results[i] = ChunkResult{Index: i, Length: utf8.RuneCountInString(chunk)}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			vec, err := ix.embedder.Embed(gctx, chunk)
			if errors.Is(err, embedding.ErrDimensionMismatch) {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if err != nil {
				results[i].Err = err
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("indexing canceled: %w", err)
	}
	return results, vectors, nil
}

func failed(doc DocumentMeta, err error, start time.Time) JobSummary {
	return JobSummary{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Status:     StatusFailed,
		Err:        err,
		Duration:   time.Since(start),
	}
}
