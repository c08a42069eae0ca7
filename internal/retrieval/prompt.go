package retrieval

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoContext is returned by BuildPrompt under FallbackDecline when
// retrieval found nothing to ground the answer on.
var ErrNoContext = errors.New("no relevant context found")

// FallbackPolicy decides how to answer when there is no context.
type FallbackPolicy string

const (
	// FallbackGeneral answers from general knowledge, flagged as ungrounded.
	FallbackGeneral FallbackPolicy = "general"
	// FallbackDecline refuses to answer.
	FallbackDecline FallbackPolicy = "decline"
)

func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch p := FallbackPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FallbackGeneral, FallbackDecline:
		return p, nil
	case "":
		return FallbackGeneral, nil
	}
	return "", fmt.Errorf("unknown no-context policy %q", s)
}

type Prompt struct {
	System   string `json:"system"`
	User     string `json:"user"`
	Grounded bool   `json:"grounded"`
}

const groundedSystem = `You are a study assistant. Answer the student's question using only the excerpts from their uploaded materials below.
Excerpts are separated by "---". If the excerpts do not contain the answer, say so plainly.
Quote or paraphrase the excerpts and do not invent facts that are not in them.`

const ungroundedSystem = `You are a study assistant. No passage in the student's uploaded materials matched this question.
Start your answer by stating that it is not based on their materials, then answer from general knowledge.`

func BuildPrompt(question string, assembled AssembledContext, policy FallbackPolicy) (Prompt, error) {
	if assembled.NoContext || strings.TrimSpace(assembled.Text) == "" {
		if policy == FallbackDecline {
			return Prompt{}, ErrNoContext
		}
		return Prompt{
			System: ungroundedSystem,
			User:   question,
		}, nil
	}

	var user strings.Builder
	user.WriteString("Excerpts:\n\n")
	user.WriteString(assembled.Text)
	user.WriteString("\n\nQuestion: ")
	user.WriteString(question)

	return Prompt{
		System:   groundedSystem,
		User:     user.String(),
		Grounded: true,
	}, nil
}
