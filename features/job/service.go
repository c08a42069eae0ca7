package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"studyrag/backend/internal/config"
	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/worker"
)

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	logger *slog.Logger
}

func NewService(repo Repository, pub EventPublisher, logger *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, logger: logger}
}

// RecordOutcome stores an indexing summary. It satisfies worker.JobRecorder.
func (s *Service) RecordOutcome(ctx context.Context, summary worker.JobSummary, payload []byte) error {
	j := &Job{
		DocumentID:    summary.DocumentID,
		OwnerID:       summary.OwnerID,
		Status:        string(summary.Status),
		ChunksTotal:   summary.ChunksTotal,
		ChunksIndexed: summary.ChunksIndexed,
		ChunksSkipped: len(summary.Skipped),
		Payload:       json.RawMessage(payload),
	}
	if summary.Err != nil {
		j.Error = summary.Err.Error()
	}
	return s.repo.Save(ctx, j)
}

func (s *Service) ListFailed(ctx context.Context) ([]Job, error) {
	return s.repo.ListFailed(ctx)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID int64) ([]Job, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}

// Enqueue records a queued row for a new upload. It must run before the task
// is published so the worker's outcome always lands after it.
func (s *Service) Enqueue(ctx context.Context, doc worker.DocumentMeta, payload []byte) error {
	return s.repo.Save(ctx, &Job{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		Status:     StatusQueued,
		Payload:    json.RawMessage(payload),
	})
}

// Retry republishes a failed or partial job's task with a bumped attempt
// counter and the caller's correlation id. The row is marked queued before
// publishing, so a fast worker's outcome is never overwritten.
func (s *Service) Retry(ctx context.Context, id int64) error {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !j.Retryable() {
		return fmt.Errorf("%w: status %s", ErrNotRetryable, j.Status)
	}

	var task worker.IndexTask
	if err := json.Unmarshal(j.Payload, &task); err != nil {
		return fmt.Errorf("decode stored task: %w", err)
	}
	task.Attempt++
	task.CorrelationID = middleware.GetCorrelationID(ctx)

	body, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := s.repo.MarkQueued(ctx, id, body); err != nil {
		return err
	}
	if err := s.pub.Publish(config.TopicIndexTask, body); err != nil {
		// Restore the previous outcome so the job stays retryable.
		if rerr := s.repo.Save(context.WithoutCancel(ctx), j); rerr != nil {
			s.logger.ErrorContext(ctx, "failed to restore job after publish error", "job_id", id, "error", rerr)
		}
		return err
	}

	s.logger.InfoContext(ctx, "index job requeued", "job_id", id, "document_id", j.DocumentID, "attempt", task.Attempt)
	return nil
}

// TaskFor returns the last index task recorded for a document.
func (s *Service) TaskFor(ctx context.Context, documentID int64) (worker.IndexTask, error) {
	var task worker.IndexTask
	j, err := s.repo.GetByDocument(ctx, documentID)
	if err != nil {
		return task, err
	}
	if err := json.Unmarshal(j.Payload, &task); err != nil {
		return task, fmt.Errorf("decode stored task: %w", err)
	}
	return task, nil
}

func (s *Service) Forget(ctx context.Context, documentID int64) error {
	return s.repo.DeleteByDocument(ctx, documentID)
}
