package mcp_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"studyrag/backend/internal/retrieval"
	"studyrag/backend/internal/vector"
)

type MockRetriever struct {
	mock.Mock
}

func (m *MockRetriever) RetrieveContext(ctx context.Context, ownerID int64, query string, documentID *int64) (retrieval.Result, error) {
	args := m.Called(ctx, ownerID, query, documentID)
	return args.Get(0).(retrieval.Result), args.Error(1)
}

type MockStats struct {
	mock.Mock
}

func (m *MockStats) Stats(ctx context.Context, ownerID int64) (vector.Stats, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(vector.Stats), args.Error(1)
}
