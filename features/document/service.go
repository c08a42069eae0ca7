package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"studyrag/backend/internal/config"
	"studyrag/backend/internal/extract"
	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/vector"
	"studyrag/backend/internal/worker"
)

var ErrInvalidDocument = errors.New("invalid document")

type BlobStore interface {
	Put(ctx context.Context, ownerID int64, filename string, r io.Reader) (string, int64, error)
	Delete(ctx context.Context, ref string) error
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// JobStore is the slice of the job feature that uploads and removal need.
type JobStore interface {
	Enqueue(ctx context.Context, doc worker.DocumentMeta, payload []byte) error
	TaskFor(ctx context.Context, documentID int64) (worker.IndexTask, error)
	Forget(ctx context.Context, documentID int64) error
}

type Service struct {
	blobs  BlobStore
	pub    EventPublisher
	index  vector.Index
	jobs   JobStore
	logger *slog.Logger
}

func NewService(blobs BlobStore, pub EventPublisher, idx vector.Index, jobs JobStore, logger *slog.Logger) *Service {
	return &Service{blobs: blobs, pub: pub, index: idx, jobs: jobs, logger: logger}
}

// Index stores the raw document and queues it for indexing. The returned
// metadata carries the storage reference and size.
func (s *Service) Index(ctx context.Context, meta worker.DocumentMeta, r io.Reader) (worker.DocumentMeta, error) {
	if meta.ID <= 0 || meta.OwnerID <= 0 {
		return meta, fmt.Errorf("%w: document and owner ids are required", ErrInvalidDocument)
	}
	ext := extensionFor(meta.MediaType)
	if ext == "" {
		return meta, fmt.Errorf("%w: %q", extract.ErrUnsupportedMediaType, meta.MediaType)
	}

	ref, size, err := s.blobs.Put(ctx, meta.OwnerID, strconv.FormatInt(meta.ID, 10)+ext, r)
	if err != nil {
		return meta, fmt.Errorf("store upload: %w", err)
	}
	meta.StorageRef = ref
	meta.Size = size

	body, err := json.Marshal(worker.IndexTask{
		Document:      meta,
		CorrelationID: middleware.GetCorrelationID(ctx),
	})
	if err != nil {
		return meta, err
	}

	// The queued row lets a delete find the blob before the worker runs.
	if err := s.jobs.Enqueue(ctx, meta, body); err != nil {
		s.removeBlob(ctx, ref)
		return meta, fmt.Errorf("record index job: %w", err)
	}

	if err := s.pub.Publish(config.TopicIndexTask, body); err != nil {
		if fErr := s.jobs.Forget(ctx, meta.ID); fErr != nil {
			s.logger.WarnContext(ctx, "failed to remove queued job", "document_id", meta.ID, "error", fErr)
		}
		s.removeBlob(ctx, ref)
		return meta, fmt.Errorf("publish index task: %w", err)
	}

	s.logger.InfoContext(ctx, "document queued for indexing", "document_id", meta.ID, "owner_id", meta.OwnerID, "size", size)
	return meta, nil
}

// Delete removes every vector of the document, then its stored upload and job
// record. An indexing run still in flight may upsert after the vectors are
// gone; deleting again clears them.
func (s *Service) Delete(ctx context.Context, ownerID, documentID int64) error {
	if err := s.index.DeleteByFilter(ctx, vector.Filter{OwnerID: ownerID, DocumentID: &documentID}); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}

	task, err := s.jobs.TaskFor(ctx, documentID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		s.logger.WarnContext(ctx, "failed to look up index job", "document_id", documentID, "error", err)
		return nil
	case task.Document.OwnerID != ownerID:
		return nil
	}

	if task.Document.StorageRef != "" {
		if err := s.blobs.Delete(ctx, task.Document.StorageRef); err != nil {
			s.logger.WarnContext(ctx, "failed to delete stored upload", "ref", task.Document.StorageRef, "error", err)
		}
	}
	if err := s.jobs.Forget(ctx, documentID); err != nil {
		return fmt.Errorf("forget job: %w", err)
	}

	s.logger.InfoContext(ctx, "document deleted", "document_id", documentID, "owner_id", ownerID)
	return nil
}

func (s *Service) removeBlob(ctx context.Context, ref string) {
	if err := s.blobs.Delete(ctx, ref); err != nil {
		s.logger.WarnContext(ctx, "failed to clean up stored upload", "ref", ref, "error", err)
	}
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case extract.MediaTypePDF:
		return ".pdf"
	case extract.MediaTypeDOCX:
		return ".docx"
	case extract.MediaTypeText:
		return ".txt"
	}
	return ""
}
