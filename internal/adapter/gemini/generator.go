package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultGenerationModel = "gemini-2.0-flash"

// Generator answers a grounded prompt with a Gemini chat model.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key not configured")
	}
	if model == "" {
		model = DefaultGenerationModel
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Generator{client: client, model: model}, nil
}

// Generate sends system and user text and returns the concatenated text parts
// of the first candidate.
func (g *Generator) Generate(ctx context.Context, system, user string) (string, error) {
	m := g.client.GenerativeModel(g.model)
	if system != "" {
		m.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	slog.DebugContext(ctx, "generating answer", "model", g.model, "prompt_length", len(user))
	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		slog.ErrorContext(ctx, "generation failed", "model", g.model, "error", err)
		return "", err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no candidates returned")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("candidate has no text parts")
	}
	return b.String(), nil
}

func (g *Generator) Close() error {
	return g.client.Close()
}
