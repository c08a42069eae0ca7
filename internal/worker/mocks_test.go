package worker_test

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"studyrag/backend/internal/vector"
	"studyrag/backend/internal/worker"
)

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Extract(ctx context.Context, r io.Reader, mediaType string) (string, error) {
	args := m.Called(ctx, r, mediaType)
	return args.String(0), args.Error(1)
}

type MockEmbedder struct {
	mock.Mock
	dim int
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) Dimension() int { return m.dim }

type MockIndex struct{ mock.Mock }

func (m *MockIndex) EnsureCollection(ctx context.Context, dimension int) error {
	return m.Called(ctx, dimension).Error(0)
}

func (m *MockIndex) Upsert(ctx context.Context, points []vector.Point) error {
	return m.Called(ctx, points).Error(0)
}

func (m *MockIndex) Search(ctx context.Context, vec []float32, filter vector.Filter, limit int, scoreThreshold float64) ([]vector.ScoredPoint, error) {
	args := m.Called(ctx, vec, filter, limit, scoreThreshold)
	return args.Get(0).([]vector.ScoredPoint), args.Error(1)
}

func (m *MockIndex) DeleteByFilter(ctx context.Context, filter vector.Filter) error {
	return m.Called(ctx, filter).Error(0)
}

func (m *MockIndex) Stats(ctx context.Context, ownerID int64) (vector.Stats, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(vector.Stats), args.Error(1)
}

type MockBlobs struct{ mock.Mock }

func (m *MockBlobs) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

type MockRecorder struct{ mock.Mock }

func (m *MockRecorder) RecordOutcome(ctx context.Context, summary worker.JobSummary, payload []byte) error {
	return m.Called(ctx, summary, payload).Error(0)
}

type splitFunc func(string) []string

func (f splitFunc) Split(s string) []string { return f(s) }

func fixedChunks(chunks ...string) splitFunc {
	return func(string) []string { return chunks }
}
