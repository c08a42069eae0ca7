package document_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"studyrag/backend/features/document"
	"studyrag/backend/internal/config"
	"studyrag/backend/internal/extract"
	"studyrag/backend/internal/middleware"
	"studyrag/backend/internal/vector"
	"studyrag/backend/internal/worker"
)

type deps struct {
	blobs *MockBlobs
	pub   *MockPublisher
	index *MockIndex
	jobs  *MockJobs
}

func newService() (*document.Service, deps) {
	d := deps{blobs: new(MockBlobs), pub: new(MockPublisher), index: new(MockIndex), jobs: new(MockJobs)}
	return document.NewService(d.blobs, d.pub, d.index, d.jobs, slog.Default()), d
}

func TestService_Index(t *testing.T) {
	meta := worker.DocumentMeta{ID: 7, OwnerID: 42, Title: "Notes", MediaType: extract.MediaTypePDF}

	t.Run("Stores And Publishes", func(t *testing.T) {
		svc, d := newService()
		d.blobs.On("Put", mock.Anything, int64(42), "7.pdf", mock.Anything).Return("42/abc.pdf", int64(5), nil)
		var order []string
		d.jobs.On("Enqueue", mock.Anything, mock.MatchedBy(func(doc worker.DocumentMeta) bool {
			return doc.ID == 7 && doc.OwnerID == 42 && doc.StorageRef == "42/abc.pdf"
		}), mock.Anything).Run(func(mock.Arguments) { order = append(order, "enqueue") }).Return(nil)
		d.pub.On("Publish", config.TopicIndexTask, mock.MatchedBy(func(body []byte) bool {
			var task worker.IndexTask
			if err := json.Unmarshal(body, &task); err != nil {
				return false
			}
			return task.Document.StorageRef == "42/abc.pdf" && task.Document.Size == 5 && task.CorrelationID == "req-1"
		})).Run(func(mock.Arguments) { order = append(order, "publish") }).Return(nil)

		ctx := middleware.WithCorrelationID(context.Background(), "req-1")
		got, err := svc.Index(ctx, meta, strings.NewReader("%PDF-"))
		require.NoError(t, err)
		assert.Equal(t, "42/abc.pdf", got.StorageRef)
		assert.Equal(t, int64(5), got.Size)
		assert.Equal(t, []string{"enqueue", "publish"}, order)
		d.pub.AssertExpectations(t)
		d.jobs.AssertExpectations(t)
	})

	t.Run("Publish Failure Removes Blob And Job", func(t *testing.T) {
		svc, d := newService()
		d.blobs.On("Put", mock.Anything, int64(42), "7.pdf", mock.Anything).Return("42/abc.pdf", int64(5), nil)
		d.jobs.On("Enqueue", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		d.pub.On("Publish", config.TopicIndexTask, mock.Anything).Return(errors.New("nsq down"))
		d.jobs.On("Forget", mock.Anything, int64(7)).Return(nil)
		d.blobs.On("Delete", mock.Anything, "42/abc.pdf").Return(nil)

		_, err := svc.Index(context.Background(), meta, strings.NewReader("%PDF-"))
		assert.ErrorContains(t, err, "nsq down")
		d.blobs.AssertExpectations(t)
		d.jobs.AssertExpectations(t)
	})

	t.Run("Job Record Failure Skips Publish", func(t *testing.T) {
		svc, d := newService()
		d.blobs.On("Put", mock.Anything, int64(42), "7.pdf", mock.Anything).Return("42/abc.pdf", int64(5), nil)
		d.jobs.On("Enqueue", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("db down"))
		d.blobs.On("Delete", mock.Anything, "42/abc.pdf").Return(nil)

		_, err := svc.Index(context.Background(), meta, strings.NewReader("%PDF-"))
		assert.ErrorContains(t, err, "db down")
		d.pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		d.blobs.AssertExpectations(t)
	})

	t.Run("Unsupported Media Type", func(t *testing.T) {
		svc, d := newService()
		bad := meta
		bad.MediaType = "image/png"

		_, err := svc.Index(context.Background(), bad, strings.NewReader(""))
		assert.ErrorIs(t, err, extract.ErrUnsupportedMediaType)
		d.blobs.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Missing IDs", func(t *testing.T) {
		svc, _ := newService()
		_, err := svc.Index(context.Background(), worker.DocumentMeta{MediaType: extract.MediaTypeText}, strings.NewReader("x"))
		assert.ErrorIs(t, err, document.ErrInvalidDocument)
	})
}

func TestService_Delete(t *testing.T) {
	docID := int64(7)
	filter := vector.Filter{OwnerID: 42, DocumentID: &docID}

	tests := []struct {
		name    string
		setup   func(d deps)
		wantErr bool
	}{
		{
			name: "Removes Vectors Blob And Job",
			setup: func(d deps) {
				d.index.On("DeleteByFilter", mock.Anything, filter).Return(nil)
				d.jobs.On("TaskFor", mock.Anything, int64(7)).Return(worker.IndexTask{Document: worker.DocumentMeta{ID: 7, OwnerID: 42, StorageRef: "42/abc.pdf"}}, nil)
				d.blobs.On("Delete", mock.Anything, "42/abc.pdf").Return(nil)
				d.jobs.On("Forget", mock.Anything, int64(7)).Return(nil)
			},
		},
		{
			name: "No Job Record",
			setup: func(d deps) {
				d.index.On("DeleteByFilter", mock.Anything, filter).Return(nil)
				d.jobs.On("TaskFor", mock.Anything, int64(7)).Return(worker.IndexTask{}, sql.ErrNoRows)
			},
		},
		{
			name: "Other Owner Keeps Blob",
			setup: func(d deps) {
				d.index.On("DeleteByFilter", mock.Anything, filter).Return(nil)
				d.jobs.On("TaskFor", mock.Anything, int64(7)).Return(worker.IndexTask{Document: worker.DocumentMeta{ID: 7, OwnerID: 99, StorageRef: "99/x.pdf"}}, nil)
			},
		},
		{
			name: "Index Unavailable",
			setup: func(d deps) {
				d.index.On("DeleteByFilter", mock.Anything, filter).Return(vector.ErrIndexUnavailable)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, d := newService()
			tt.setup(d)

			err := svc.Delete(context.Background(), 42, 7)
			if tt.wantErr {
				assert.ErrorIs(t, err, vector.ErrIndexUnavailable)
				d.jobs.AssertNotCalled(t, "TaskFor", mock.Anything, mock.Anything)
				return
			}
			assert.NoError(t, err)
			d.index.AssertExpectations(t)
			d.jobs.AssertExpectations(t)
			d.blobs.AssertExpectations(t)
		})
	}
}
