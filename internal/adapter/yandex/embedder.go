// Package yandex embeds text through Yandex Cloud Foundation Models.
package yandex

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
	DefaultBaseURL   = "https://llm.api.cloud.yandex.net"
	DefaultModel     = "text-search-doc"
	DefaultDimension = 256
	DefaultTimeout   = 30 * time.Second
)

type Config struct {
	APIKey    string
	FolderID  string
	BaseURL   string
	Model     string
	Dimension int
	Timeout   time.Duration
}

type Embedder struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	modelURI  string
	dimension int
}

type embeddingRequest struct {
	ModelURI string `json:"modelUri"`
	Text     string `json:"text"`
}

type embeddingResponse struct {
	Embedding    []float32 `json:"embedding"`
	NumTokens    string    `json:"numTokens,omitempty"`
	ModelVersion string    `json:"modelVersion,omitempty"`
}

func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("yandex: api key is required")
	}
	if cfg.FolderID == "" {
		return nil, errors.New("yandex: folder id is required")
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
		modelURI:  fmt.Sprintf("emb://%s/%s/latest", cfg.FolderID, cfg.Model),
		dimension: cfg.Dimension,
	}, nil
}

func (e *Embedder) Name() string { return "yandex" }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{ModelURI: e.modelURI, Text: text})
	if err != nil {
		return nil, err
	}

	url := e.baseURL + "/foundationModels/v1/textEmbedding"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Api-Key "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yandex: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("yandex: api error: %d: %s", resp.StatusCode, msg)
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("yandex: decode response: %w", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New("yandex: empty embedding")
	}
	return out.Embedding, nil
}
