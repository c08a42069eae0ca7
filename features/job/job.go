package job

import (
	"encoding/json"
	"errors"
	"time"
)

// Status values mirror worker.JobStatus, plus queued for a task not yet run.
const (
	StatusQueued    = "queued"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
	StatusEmpty     = "empty"
)

var ErrNotRetryable = errors.New("job is not retryable")

// Job is the latest indexing outcome for one document.
type Job struct {
	ID            int64           `json:"id"`
	DocumentID    int64           `json:"documentId"`
	OwnerID       int64           `json:"ownerId"`
	Status        string          `json:"status"`
	ChunksTotal   int             `json:"chunksTotal"`
	ChunksIndexed int             `json:"chunksIndexed"`
	ChunksSkipped int             `json:"chunksSkipped"`
	Error         string          `json:"error,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	Retries       int             `json:"retries"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

func (j *Job) Retryable() bool {
	return j.Status == StatusFailed || j.Status == StatusPartial
}
