// Package vector defines the vector index contract shared by the Qdrant and
// Weaviate backends.
package vector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrIndexUnavailable wraps any transport or engine failure.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrDimensionMismatch means the existing collection was created for a
	// different embedding size. It is a configuration error; retrying is futile.
	ErrDimensionMismatch = errors.New("vector collection dimension mismatch")
)

// Payload is the chunk record stored next to each vector.
type Payload struct {
	OwnerID       int64  `json:"owner_id"`
	DocumentID    int64  `json:"document_id"`
	DocumentTitle string `json:"document_title"`
	ChunkIndex    int    `json:"chunk_index"`
	Text          string `json:"text"`
	ChunkLength   int    `json:"chunk_length"`
}

type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

type ScoredPoint struct {
	ID      string
	Score   float64
	Payload Payload
}

// Filter selects points by owner. DocumentID narrows it to a single document
// when set; a positive FromChunk further keeps only chunk_index >= FromChunk.
type Filter struct {
	OwnerID    int64
	DocumentID *int64
	FromChunk  int
}

type Stats struct {
	TotalVectors    int `json:"totalVectors"`
	UniqueDocuments int `json:"uniqueDocuments"`
}

type Index interface {
	EnsureCollection(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, vec []float32, filter Filter, limit int, scoreThreshold float64) ([]ScoredPoint, error)
	DeleteByFilter(ctx context.Context, filter Filter) error
	Stats(ctx context.Context, ownerID int64) (Stats, error)
}

var pointNamespace = uuid.MustParse("6f1c3a52-6d0e-4c1b-9a43-2f7b8e0d5c11")

// PointID derives a stable id for a chunk so re-indexing a document
// overwrites its previous points instead of duplicating them.
func PointID(documentID int64, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%d:%d", documentID, chunkIndex))).String()
}
