// Package qdrant is a REST client for Qdrant implementing vector.Index.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyrag/backend/internal/vector"
)

const (
	DefaultTimeout = 15 * time.Second
	scrollPageSize = 256
)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
}

func NewStore(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

type statusError struct {
	method string
	path   string
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.path, e.status, e.body)
}

// EnsureCollection creates a cosine collection of the given size unless one
// already exists. A concurrent creator winning the race is not an error.
func (s *Store) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("qdrant: invalid dimension %d", dimension)
	}

	path := "/collections/" + s.collection
	var info struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, path, nil, &info)
	if err == nil {
		// Named-vector collections report no top-level size.
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return fmt.Errorf("%w: collection %s has size %d, embeddings have %d",
				vector.ErrDimensionMismatch, s.collection, size, dimension)
		}
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	status, err = s.do(ctx, http.MethodPut, path, body, nil)
	if err != nil && status != http.StatusConflict {
		return fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
	}

	// Payload indexes keep filtered search fast on large collections.
	for _, field := range []string{"owner_id", "document_id"} {
		index := map[string]any{"field_name": field, "field_schema": "integer"}
		if _, err := s.do(ctx, http.MethodPut, path+"/index?wait=true", index, nil); err != nil {
			return fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
		}
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, points []vector.Point) error {
	if len(points) == 0 {
		return nil
	}
	body := make([]map[string]any, len(points))
	for i, p := range points {
		body[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": p.Payload,
		}
	}
	path := fmt.Sprintf("/collections/%s/points?wait=true", s.collection)
	if _, err := s.do(ctx, http.MethodPut, path, map[string]any{"points": body}, nil); err != nil {
		return fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vec []float32, filter vector.Filter, limit int, scoreThreshold float64) ([]vector.ScoredPoint, error) {
	if limit <= 0 {
		limit = 5
	}
	req := map[string]any{
		"vector":          vec,
		"limit":           limit,
		"with_payload":    true,
		"filter":          matchFilter(filter),
		"score_threshold": scoreThreshold,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload vector.Payload `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", s.collection)
	if _, err := s.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
	}

	results := make([]vector.ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, vector.ScoredPoint{
			ID:      fmt.Sprint(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return results, nil
}

func (s *Store) DeleteByFilter(ctx context.Context, filter vector.Filter) error {
	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", s.collection)
	if _, err := s.do(ctx, http.MethodPost, path, map[string]any{"filter": matchFilter(filter)}, nil); err != nil {
		return fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
	}
	return nil
}

// Stats scrolls through the owner's points reading only document_id.
func (s *Store) Stats(ctx context.Context, ownerID int64) (vector.Stats, error) {
	path := fmt.Sprintf("/collections/%s/points/scroll", s.collection)
	docs := make(map[int64]struct{})
	var stats vector.Stats
	var offset any

	for {
		req := map[string]any{
			"filter":       matchFilter(vector.Filter{OwnerID: ownerID}),
			"limit":        scrollPageSize,
			"with_payload": []string{"document_id"},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					Payload struct {
						DocumentID int64 `json:"document_id"`
					} `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if _, err := s.do(ctx, http.MethodPost, path, req, &resp); err != nil {
			return vector.Stats{}, fmt.Errorf("%w: %v", vector.ErrIndexUnavailable, err)
		}

		for _, p := range resp.Result.Points {
			stats.TotalVectors++
			docs[p.Payload.DocumentID] = struct{}{}
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	stats.UniqueDocuments = len(docs)
	return stats, nil
}

func matchFilter(filter vector.Filter) map[string]any {
	must := []map[string]any{
		{"key": "owner_id", "match": map[string]any{"value": filter.OwnerID}},
	}
	if filter.DocumentID != nil {
		must = append(must, map[string]any{"key": "document_id", "match": map[string]any{"value": *filter.DocumentID}})
	}
	if filter.FromChunk > 0 {
		must = append(must, map[string]any{"key": "chunk_index", "range": map[string]any{"gte": filter.FromChunk}})
	}
	return map[string]any{"must": must}
}

// do sends a JSON request and decodes the response into out when non-nil.
// The returned status is 0 when the request never reached the server.
func (s *Store) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &statusError{method: method, path: path, status: resp.StatusCode, body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: decode: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
