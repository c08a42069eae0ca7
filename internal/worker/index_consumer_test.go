package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/storage"
	"studyrag/backend/internal/worker"
)

func newTaskMessage(t *testing.T, task worker.IndexTask) *nsq.Message {
	body, err := json.Marshal(task)
	require.NoError(t, err)
	return &nsq.Message{Body: body}
}

func TestIndexConsumer_HandleMessage(t *testing.T) {
	blobs := new(MockBlobs)
	blobs.On("Open", mock.Anything, "3/abc.txt").Return(io.NopCloser(strings.NewReader("raw")), nil)

	ex := new(MockExtractor)
	ex.On("Extract", mock.Anything, mock.Anything, testDoc.MediaType).Return("Some text.", nil)

	em := &MockEmbedder{dim: 2}
	em.On("Embed", mock.Anything, mock.Anything).Return([]float32{1, 0}, nil)

	idx := new(MockIndex)
	idx.On("EnsureCollection", mock.Anything, 2).Return(nil)
	idx.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	idx.On("DeleteByFilter", mock.Anything, mock.Anything).Return(nil)

	msg := newTaskMessage(t, worker.IndexTask{Document: testDoc, CorrelationID: "corr-1"})

	rec := new(MockRecorder)
	rec.On("RecordOutcome", mock.MatchedBy(func(ctx context.Context) bool {
		return middleware.GetCorrelationID(ctx) == "corr-1"
	}), mock.MatchedBy(func(s worker.JobSummary) bool {
		return s.Status == worker.StatusCompleted && s.ChunksIndexed == 2 && s.DocumentID == 7
	}), msg.Body).Return(nil)

	ix := worker.NewIndexer(blobs, ex, fixedChunks("a", "b"), em, idx, 2)
	consumer := worker.NewIndexConsumer(ix, rec, time.Minute)

	assert.NoError(t, consumer.HandleMessage(msg))
	rec.AssertExpectations(t)
	blobs.AssertExpectations(t)
}

func TestIndexConsumer_FailedJobIsRecordedNotRequeued(t *testing.T) {
	blobs := new(MockBlobs)
	blobs.On("Open", mock.Anything, mock.Anything).Return(nil, errors.New("object not found"))

	rec := new(MockRecorder)
	rec.On("RecordOutcome", mock.Anything, mock.MatchedBy(func(s worker.JobSummary) bool {
		return s.Status == worker.StatusFailed && s.Err != nil
	}), mock.Anything).Return(nil)

	ix := worker.NewIndexer(blobs, new(MockExtractor), fixedChunks(), &MockEmbedder{dim: 2}, new(MockIndex), 1)
	consumer := worker.NewIndexConsumer(ix, rec, time.Minute)

	assert.NoError(t, consumer.HandleMessage(newTaskMessage(t, worker.IndexTask{Document: testDoc})))
	rec.AssertExpectations(t)
}

func TestIndexConsumer_RecordFailureRequeues(t *testing.T) {
	blobs := new(MockBlobs)
	blobs.On("Open", mock.Anything, mock.Anything).Return(nil, errors.New("object not found"))

	rec := new(MockRecorder)
	rec.On("RecordOutcome", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))

	ix := worker.NewIndexer(blobs, new(MockExtractor), fixedChunks(), &MockEmbedder{dim: 2}, new(MockIndex), 1)
	consumer := worker.NewIndexConsumer(ix, rec, time.Minute)

	assert.EqualError(t, consumer.HandleMessage(newTaskMessage(t, worker.IndexTask{Document: testDoc})), "db down")
}

func TestIndexConsumer_PoisonPill(t *testing.T) {
	blobs := new(MockBlobs)
	rec := new(MockRecorder)
	ix := worker.NewIndexer(blobs, new(MockExtractor), fixedChunks(), &MockEmbedder{dim: 2}, new(MockIndex), 1)
	consumer := worker.NewIndexConsumer(ix, rec, time.Minute)

	assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: []byte("{not json")}))
	assert.NoError(t, consumer.HandleMessage(&nsq.Message{Body: nil}))
	blobs.AssertNotCalled(t, "Open", mock.Anything, mock.Anything)
	rec.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything, mock.Anything)
}

func TestNewIndexConsumer_DefaultTimeout(t *testing.T) {
	consumer := worker.NewIndexConsumer(nil, nil, 0)
	assert.Equal(t, worker.DefaultJobTimeout, consumer.Timeout())
}

func TestIndexConsumer_DeletedUploadIsDropped(t *testing.T) {
	blobs := new(MockBlobs)
	blobs.On("Open", mock.Anything, "3/abc.txt").Return(nil, fmt.Errorf("%w: 3/abc.txt", storage.ErrNotFound))

	rec := new(MockRecorder)
	ix := worker.NewIndexer(blobs, new(MockExtractor), fixedChunks(), &MockEmbedder{dim: 2}, new(MockIndex), 1)
	consumer := worker.NewIndexConsumer(ix, rec, time.Minute)

	assert.NoError(t, consumer.HandleMessage(newTaskMessage(t, worker.IndexTask{Document: testDoc})))
	rec.AssertNotCalled(t, "RecordOutcome", mock.Anything, mock.Anything, mock.Anything)
}
