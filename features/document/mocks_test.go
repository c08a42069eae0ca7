package document_test

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
	"studyrag/backend/internal/vector"
	"studyrag/backend/internal/worker"
)

type MockBlobs struct{ mock.Mock }

func (m *MockBlobs) Put(ctx context.Context, ownerID int64, filename string, r io.Reader) (string, int64, error) {
	args := m.Called(ctx, ownerID, filename, r)
	return args.String(0), args.Get(1).(int64), args.Error(2)
}

func (m *MockBlobs) Delete(ctx context.Context, ref string) error {
	return m.Called(ctx, ref).Error(0)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

type MockIndex struct{ mock.Mock }

func (m *MockIndex) EnsureCollection(ctx context.Context, dimension int) error {
	return m.Called(ctx, dimension).Error(0)
}

func (m *MockIndex) Upsert(ctx context.Context, points []vector.Point) error {
	return m.Called(ctx, points).Error(0)
}

func (m *MockIndex) Search(ctx context.Context, vec []float32, filter vector.Filter, limit int, scoreThreshold float64) ([]vector.ScoredPoint, error) {
	args := m.Called(ctx, vec, filter, limit, scoreThreshold)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]vector.ScoredPoint), args.Error(1)
}

func (m *MockIndex) DeleteByFilter(ctx context.Context, filter vector.Filter) error {
	return m.Called(ctx, filter).Error(0)
}

func (m *MockIndex) Stats(ctx context.Context, ownerID int64) (vector.Stats, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(vector.Stats), args.Error(1)
}

type MockJobs struct{ mock.Mock }

func (m *MockJobs) Enqueue(ctx context.Context, doc worker.DocumentMeta, payload []byte) error {
	return m.Called(ctx, doc, payload).Error(0)
}

func (m *MockJobs) TaskFor(ctx context.Context, documentID int64) (worker.IndexTask, error) {
	args := m.Called(ctx, documentID)
	return args.Get(0).(worker.IndexTask), args.Error(1)
}

func (m *MockJobs) Forget(ctx context.Context, documentID int64) error {
	return m.Called(ctx, documentID).Error(0)
}
