// Package weaviate is the Weaviate backend of vector.Index.
package weaviate

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-openapi/strfmt"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"studyrag/backend/internal/vector"
)

const (
	propText          = "text"
	propOwnerID       = "ownerId"
	propDocumentID    = "documentId"
	propDocumentTitle = "documentTitle"
	propChunkIndex    = "chunkIndex"
	propChunkLength   = "chunkLength"
)

type Store struct {
	client    *weaviate.Client
	schema    SchemaClient
	className string
}

// NewStore binds a store to one class. Collection names are converted to
// Weaviate class names, e.g. "document_chunks" becomes "DocumentChunks".
func NewStore(client *weaviate.Client, collection string) *Store {
	return &Store{
		client:    client,
		schema:    schemaAPI{client: client},
		className: ClassName(collection),
	}
}

func ClassName(collection string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(collection, func(r rune) bool {
		return r == '_' || r == '-' || r == ' ' || r == '.'
	}) {
		r, size := utf8.DecodeRuneInString(part)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(part[size:])
	}
	if b.Len() == 0 {
		return "DocumentChunk"
	}
	return b.String()
}

// EnsureCollection creates the class if needed. Weaviate fixes the vector
// dimension on first insert, so dimension is not sent.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if err := EnsureSchema(ctx, s.schema, s.className); err != nil {
		return fmt.Errorf("%w: ensure class %s: %v", vector.ErrIndexUnavailable, s.className, err)
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(points))
	for _, p := range points {
		objects = append(objects, &models.Object{
			Class:  s.className,
			ID:     strfmt.UUID(p.ID),
			Vector: p.Vector,
			Properties: map[string]interface{}{
				propText:          p.Payload.Text,
				propOwnerID:       p.Payload.OwnerID,
				propDocumentID:    p.Payload.DocumentID,
				propDocumentTitle: p.Payload.DocumentTitle,
				propChunkIndex:    p.Payload.ChunkIndex,
				propChunkLength:   p.Payload.ChunkLength,
			},
		})
	}

	res, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: batch upsert: %v", vector.ErrIndexUnavailable, err)
	}
	for _, r := range res {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("%w: batch upsert %s: %s", vector.ErrIndexUnavailable, r.ID, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, filter vector.Filter, limit int, scoreThreshold float64) ([]vector.ScoredPoint, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(vec).
		WithDistance(float32(1 - scoreThreshold))

	fields := []graphql.Field{
		{Name: propText},
		{Name: propOwnerID},
		{Name: propDocumentID},
		{Name: propDocumentTitle},
		{Name: propChunkIndex},
		{Name: propChunkLength},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithNearVector(nearVector).
		WithWhere(where(filter)).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", vector.ErrIndexUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("%w: graphql error: %s", vector.ErrIndexUnavailable, res.Errors[0].Message)
	}

	var results []vector.ScoredPoint
	data, _ := res.Data["Get"].(map[string]interface{})
	rows, _ := data[s.className].([]interface{})
	for _, row := range rows {
		props, ok := row.(map[string]interface{})
		if !ok {
			continue
		}
		sp := vector.ScoredPoint{Payload: decodePayload(props)}
		if additional, ok := props["_additional"].(map[string]interface{}); ok {
			if id, ok := additional["id"].(string); ok {
				sp.ID = id
			}
			if d, ok := additional["distance"].(float64); ok {
				sp.Score = 1 - d
			}
		}
		results = append(results, sp)
	}
	return results, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, filter vector.Filter) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithOutput("minimal").
		WithWhere(where(filter)).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("%w: delete: %v", vector.ErrIndexUnavailable, err)
	}
	return nil
}

// Stats groups the owner's chunks by document: the group count is the number
// of documents and the summed group sizes the number of vectors.
func (s *Store) Stats(ctx context.Context, ownerID int64) (vector.Stats, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithWhere(where(vector.Filter{OwnerID: ownerID})).
		WithGroupBy(propDocumentID).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return vector.Stats{}, fmt.Errorf("%w: stats: %v", vector.ErrIndexUnavailable, err)
	}
	if len(res.Errors) > 0 {
		return vector.Stats{}, fmt.Errorf("%w: graphql error: %s", vector.ErrIndexUnavailable, res.Errors[0].Message)
	}

	var stats vector.Stats
	data, _ := res.Data["Aggregate"].(map[string]interface{})
	groups, _ := data[s.className].([]interface{})
	for _, g := range groups {
		group, ok := g.(map[string]interface{})
		if !ok {
			continue
		}
		meta, _ := group["meta"].(map[string]interface{})
		count, _ := meta["count"].(float64)
		if count == 0 {
			continue
		}
		stats.UniqueDocuments++
		stats.TotalVectors += int(count)
	}
	return stats, nil
}

func where(filter vector.Filter) *filters.WhereBuilder {
	operands := []*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{propOwnerID}).
			WithOperator(filters.Equal).
			WithValueInt(filter.OwnerID),
	}
	if filter.DocumentID != nil {
		operands = append(operands, filters.Where().
			WithPath([]string{propDocumentID}).
			WithOperator(filters.Equal).
			WithValueInt(*filter.DocumentID))
	}
	if filter.FromChunk > 0 {
		operands = append(operands, filters.Where().
			WithPath([]string{propChunkIndex}).
			WithOperator(filters.GreaterThanEqual).
			WithValueInt(int64(filter.FromChunk)))
	}
	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.And).
		WithOperands(operands)
}

func decodePayload(props map[string]interface{}) vector.Payload {
	var p vector.Payload
	p.Text, _ = props[propText].(string)
	p.DocumentTitle, _ = props[propDocumentTitle].(string)
	if v, ok := props[propOwnerID].(float64); ok {
		p.OwnerID = int64(v)
	}
	if v, ok := props[propDocumentID].(float64); ok {
		p.DocumentID = int64(v)
	}
	if v, ok := props[propChunkIndex].(float64); ok {
		p.ChunkIndex = int(v)
	}
	if v, ok := props[propChunkLength].(float64); ok {
		p.ChunkLength = int(v)
	}
	return p
}
