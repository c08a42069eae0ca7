package gemini

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	DefaultEmbeddingModel = "text-embedding-004"
	DefaultDimension      = 768
)

type Embedder struct {
	client    *genai.Client
	model     string
	dimension int
}

// NewEmbedder creates a Gemini embedder. Extra client options are appended
// after the API key, which lets tests point the client at a fake endpoint.
func NewEmbedder(ctx context.Context, apiKey, model string, dimension int, opts ...option.ClientOption) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not configured")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Embedder{client: client, model: model, dimension: dimension}, nil
}

func (e *Embedder) Name() string { return "gemini" }

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	slog.DebugContext(ctx, "embedding content", "model", e.model, "length", len(text))
	em := e.client.EmbeddingModel(e.model)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "model", e.model, "error", err)
		return nil, err
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("empty embedding received")
	}
	return res.Embedding.Values, nil
}

func (e *Embedder) Close() error {
	return e.client.Close()
}
