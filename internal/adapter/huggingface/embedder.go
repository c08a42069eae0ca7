// Package huggingface embeds text through the Hugging Face inference API
// feature-extraction pipeline.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	DefaultBaseURL   = "https://api-inference.huggingface.co"
	DefaultModel     = "sentence-transformers/all-MiniLM-L6-v2"
	DefaultDimension = 384
	DefaultTimeout   = 30 * time.Second
)

type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type Embedder struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	dimension int
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("huggingface: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = DefaultDimension
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Embedder{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   cfg.BaseURL,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (e *Embedder) Name() string { return "huggingface" }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"inputs":  text,
		"options": map[string]bool{"wait_for_model": true},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s", e.baseURL, e.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("huggingface: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("huggingface: api error: %d: %s", resp.StatusCode, truncate(payload, 200))
	}

	return decodeVector(payload)
}

// decodeVector accepts the pipeline's flat vector, a batch of vectors (first
// one wins) or per-token vectors for a single input, which are mean-pooled.
func decodeVector(payload []byte) ([]float32, error) {
	var flat []float32
	if err := json.Unmarshal(payload, &flat); err == nil {
		if len(flat) == 0 {
			return nil, errors.New("huggingface: empty embedding")
		}
		return flat, nil
	}

	var nested [][]float32
	if err := json.Unmarshal(payload, &nested); err == nil {
		if len(nested) == 0 || len(nested[0]) == 0 {
			return nil, errors.New("huggingface: empty embedding")
		}
		return nested[0], nil
	}

	var tokens [][][]float32
	if err := json.Unmarshal(payload, &tokens); err != nil {
		return nil, fmt.Errorf("huggingface: unexpected response: %s", truncate(payload, 200))
	}
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, errors.New("huggingface: empty embedding")
	}
	return meanPool(tokens[0]), nil
}

func meanPool(rows [][]float32) []float32 {
	out := make([]float32, len(rows[0]))
	for _, row := range rows {
		for i := range out {
			if i < len(row) {
				out[i] += row[i]
			}
		}
	}
	for i := range out {
		out[i] /= float32(len(rows))
	}
	return out
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
