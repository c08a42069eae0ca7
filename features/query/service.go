package query

import (
	"context"
	"errors"
	"fmt"

	"studyrag/backend/internal/retrieval"
)

var ErrGeneration = errors.New("answer generation failed")

type Retriever interface {
	RetrieveContext(ctx context.Context, ownerID int64, query string, documentID *int64) (retrieval.Result, error)
}

type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

type Request struct {
	OwnerID    int64  `json:"owner_id"`
	Query      string `json:"query"`
	DocumentID *int64 `json:"document_id,omitempty"`
}

// Answer is the outcome of one question. Answer is empty unless generation
// is enabled; Declined means the no-context policy refused to answer.
type Answer struct {
	Prompt     retrieval.Prompt    `json:"prompt"`
	Answer     string              `json:"answer,omitempty"`
	Grounded   bool                `json:"grounded"`
	Declined   bool                `json:"declined"`
	Degraded   bool                `json:"degraded"`
	ChunksUsed int                 `json:"chunksUsed"`
	Truncated  bool                `json:"truncated"`
	Passages   []retrieval.Passage `json:"passages"`
}

type Service struct {
	retriever Retriever
	generator Generator
	policy    retrieval.FallbackPolicy
}

// NewService builds the query workflow. generator may be nil, in which case
// callers receive the prompt only.
func NewService(r Retriever, g Generator, policy retrieval.FallbackPolicy) *Service {
	return &Service{retriever: r, generator: g, policy: policy}
}

// RetrieveContext runs retrieval alone, for callers that build their own prompt.
func (s *Service) RetrieveContext(ctx context.Context, ownerID int64, query string, documentID *int64) (retrieval.Result, error) {
	return s.retriever.RetrieveContext(ctx, ownerID, query, documentID)
}

func (s *Service) Ask(ctx context.Context, req Request) (Answer, error) {
	res, err := s.retriever.RetrieveContext(ctx, req.OwnerID, req.Query, req.DocumentID)
	if err != nil {
		return Answer{}, err
	}

	ans := Answer{
		Degraded:   res.Degraded,
		ChunksUsed: res.Context.ChunksUsed,
		Truncated:  res.Context.Truncated,
		Passages:   res.Passages,
	}
	if ans.Passages == nil {
		ans.Passages = []retrieval.Passage{}
	}

	prompt, err := retrieval.BuildPrompt(req.Query, res.Context, s.policy)
	if errors.Is(err, retrieval.ErrNoContext) {
		ans.Declined = true
		return ans, nil
	}
	if err != nil {
		return Answer{}, err
	}
	ans.Prompt = prompt
	ans.Grounded = prompt.Grounded

	if s.generator == nil {
		return ans, nil
	}
	text, err := s.generator.Generate(ctx, prompt.System, prompt.User)
	if err != nil {
		return ans, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	ans.Answer = text
	return ans, nil
}
