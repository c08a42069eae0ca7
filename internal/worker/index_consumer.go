package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nsqio/go-nsq"

	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/storage"
)

// JobRecorder persists the outcome of an indexing run together with the
// original message so it can be retried.
type JobRecorder interface {
	RecordOutcome(ctx context.Context, summary JobSummary, payload []byte) error
}

const (
	// DefaultJobTimeout stays under NSQ's default 15 minute message timeout.
	DefaultJobTimeout = 14 * time.Minute
	// RecordTimeout bounds saving the outcome once the job has finished.
	RecordTimeout = 10 * time.Second
)

type IndexConsumer struct {
	indexer  *Indexer
	recorder JobRecorder
	timeout  time.Duration
}

// NewIndexConsumer builds the index.task handler. timeout plus RecordTimeout
// must be shorter than the consumer's MsgTimeout, otherwise nsqd redelivers a
// message whose job is still running.
func NewIndexConsumer(ix *Indexer, rec JobRecorder, timeout time.Duration) *IndexConsumer {
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	return &IndexConsumer{indexer: ix, recorder: rec, timeout: timeout}
}

// Timeout is the longest a single indexing job may run.
func (c *IndexConsumer) Timeout() time.Duration { return c.timeout }

// HandleMessage indexes one document. Failures are recorded as job rows, not
// requeued: a retry goes through the job API. Only a failure to record the
// outcome asks NSQ to redeliver.
func (c *IndexConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var task IndexTask
	if err := json.Unmarshal(m.Body, &task); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}

	ctx := context.Background()
	if task.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, task.CorrelationID)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	doc := task.Document
	slog.InfoContext(ctx, "indexing document", "document_id", doc.ID, "owner_id", doc.OwnerID, "media_type", doc.MediaType, "attempt", task.Attempt)

	summary := c.indexer.IndexStored(ctx, doc)
	if errors.Is(summary.Err, storage.ErrNotFound) {
		// The document was deleted while its task waited in the queue.
		slog.WarnContext(ctx, "stored upload gone, dropping task", "document_id", doc.ID, "error", summary.Err)
		return nil
	}

	attrs := []any{
		"document_id", doc.ID,
		"status", summary.Status,
		"chunks_total", summary.ChunksTotal,
		"chunks_indexed", summary.ChunksIndexed,
		"chunks_skipped", len(summary.Skipped),
		"duration", summary.Duration,
	}
	if summary.Status == StatusFailed {
		slog.ErrorContext(ctx, "indexing failed", append(attrs, "error", summary.Err)...)
	} else {
		slog.InfoContext(ctx, "indexing finished", attrs...)
	}

	if c.recorder != nil {
		// The job deadline may already have passed.
		recCtx, recCancel := context.WithTimeout(context.WithoutCancel(ctx), RecordTimeout)
		defer recCancel()
		if err := c.recorder.RecordOutcome(recCtx, summary, m.Body); err != nil {
			slog.ErrorContext(ctx, "failed to record indexing outcome", "document_id", doc.ID, "error", err)
			return err
		}
	}
	return nil
}
