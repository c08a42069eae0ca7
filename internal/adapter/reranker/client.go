// Package reranker reorders retrieved passages with a hosted cross-encoder.
package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	ProviderNone   = "none"
	ProviderJina   = "jina"
	ProviderCohere = "cohere"
)

type endpoint struct {
	url  string
	body func(query string, docs []string) map[string]interface{}
}

var endpoints = map[string]endpoint{
	ProviderJina: {
		url: "https://api.jina.ai/v1/rerank",
		body: func(query string, docs []string) map[string]interface{} {
			return map[string]interface{}{
				"model":     "jina-reranker-v2-base-multilingual",
				"query":     query,
				"documents": docs,
			}
		},
	},
	ProviderCohere: {
		url: "https://api.cohere.ai/v1/rerank",
		body: func(query string, docs []string) map[string]interface{} {
			return map[string]interface{}{
				"model":            "rerank-multilingual-v3.0",
				"query":            query,
				"documents":        docs,
				"top_n":            len(docs),
				"return_documents": false,
			}
		},
	},
}

type Client struct {
	apiKey   string
	provider string
	client   *http.Client
	baseURL  string
}

func NewClient(provider, apiKey string) *Client {
	return &Client{
		provider: provider,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) SetBaseURL(url string) {
	c.baseURL = url
}

// Enabled reports whether calls leave the process.
func (c *Client) Enabled() bool {
	_, ok := endpoints[c.provider]
	return ok && c.apiKey != ""
}

// Rerank returns passage indices ordered from most to least relevant. With
// no provider configured the input order is returned unchanged.
func (c *Client) Rerank(ctx context.Context, query string, docs []string) ([]int, error) {
	ep, ok := endpoints[c.provider]
	if !ok || c.apiKey == "" || len(docs) == 0 {
		indices := make([]int, len(docs))
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	url := ep.url
	if c.baseURL != "" {
		url = c.baseURL
	}

	jsonBody, err := json.Marshal(ep.body(query, docs))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s api error: %d", c.provider, resp.StatusCode)
	}

	var result struct {
		Results []struct {
			Index int     `json:"index"`
			Score float64 `json:"relevance_score"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(docs))
	indices := make([]int, 0, len(docs))
	for _, r := range result.Results {
		if r.Index < 0 || r.Index >= len(docs) || seen[r.Index] {
			continue
		}
		seen[r.Index] = true
		indices = append(indices, r.Index)
	}
	return indices, nil
}
