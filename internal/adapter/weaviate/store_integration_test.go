package weaviate_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyrag/backend/internal/adapter/weaviate"
	"studyrag/backend/internal/testutils"
	"studyrag/backend/internal/vector"
)

func TestWeaviateStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t, testutils.Weaviate)
	s.Setup()
	defer s.Teardown()

	store := weaviate.NewStore(s.Weaviate, "document_chunks")
	ctx := context.Background()

	require.NoError(t, store.EnsureCollection(ctx, 3))
	require.NoError(t, store.EnsureCollection(ctx, 3))

	points := []vector.Point{
		{ID: vector.PointID(1, 0), Vector: []float32{1, 0, 0}, Payload: vector.Payload{OwnerID: 10, DocumentID: 1, Text: "Photosynthesis converts light."}},
		{ID: vector.PointID(1, 1), Vector: []float32{0.9, 0.1, 0}, Payload: vector.Payload{OwnerID: 10, DocumentID: 1, ChunkIndex: 1, Text: "Chlorophyll absorbs light."}},
		{ID: vector.PointID(2, 0), Vector: []float32{1, 0, 0}, Payload: vector.Payload{OwnerID: 10, DocumentID: 2, Text: "Other book."}},
		{ID: vector.PointID(3, 0), Vector: []float32{1, 0, 0}, Payload: vector.Payload{OwnerID: 99, DocumentID: 3, Text: "Someone else's book."}},
	}
	require.NoError(t, store.Upsert(ctx, points))

	res, err := store.Search(ctx, []float32{1, 0, 0}, vector.Filter{OwnerID: 10}, 10, 0.5)
	require.NoError(t, err)
	require.Len(t, res, 3)
	for _, r := range res {
		assert.Equal(t, int64(10), r.Payload.OwnerID)
	}
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)

	doc := int64(1)
	res, err = store.Search(ctx, []float32{1, 0, 0}, vector.Filter{OwnerID: 10, DocumentID: &doc}, 10, 0.5)
	require.NoError(t, err)
	assert.Len(t, res, 2)

	stats, err := store.Stats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, vector.Stats{TotalVectors: 3, UniqueDocuments: 2}, stats)

	require.NoError(t, store.DeleteByFilter(ctx, vector.Filter{OwnerID: 10, DocumentID: &doc}))
	res, err = store.Search(ctx, []float32{1, 0, 0}, vector.Filter{OwnerID: 10}, 10, 0.5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}
