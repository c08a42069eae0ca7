package retrieval

import (
	"strings"
	"unicode/utf8"
)

const (
	// Separator sits between passages in the assembled context.
	Separator = "\n\n---\n\n"
	// TruncationMarker ends a first passage that was cut to fit the budget.
	TruncationMarker = "\n[...]"
)

// Passage is a retrieved chunk ready for assembly.
type Passage struct {
	Text          string  `json:"text"`
	Score         float64 `json:"score"`
	DocumentID    int64   `json:"documentId"`
	DocumentTitle string  `json:"documentTitle,omitempty"`
	ChunkIndex    int     `json:"chunkIndex"`
}

// AssembledContext is the bounded context block. NoContext is set when there
// were no passages at all, so callers never mistake it for empty content.
type AssembledContext struct {
	Text       string `json:"text"`
	ChunksUsed int    `json:"chunksUsed"`
	Truncated  bool   `json:"truncated"`
	NoContext  bool   `json:"noContext"`
}

// Assemble concatenates passages in the given rank order until maxChunks are
// used or the next passage would push the text past maxChars runes. Only the
// first passage is ever cut; later ones that do not fit are dropped. A
// non-positive maxChunks means no chunk limit.
func Assemble(passages []Passage, maxChars, maxChunks int) AssembledContext {
	if len(passages) == 0 {
		return AssembledContext{NoContext: true}
	}

	sepLen := utf8.RuneCountInString(Separator)

	var (
		b      strings.Builder
		length int
		used   int
	)
	for _, p := range passages {
		if maxChunks > 0 && used == maxChunks {
			break
		}

		n := utf8.RuneCountInString(p.Text)
		extra := n
		if used > 0 {
			extra += sepLen
		}

		if length+extra <= maxChars {
			if used > 0 {
				b.WriteString(Separator)
			}
			b.WriteString(p.Text)
			length += extra
			used++
			continue
		}

		if used == 0 {
			return AssembledContext{
				Text:       truncateToBudget(p.Text, maxChars),
				ChunksUsed: 1,
				Truncated:  true,
			}
		}
		break
	}

	return AssembledContext{Text: b.String(), ChunksUsed: used}
}

func truncateToBudget(text string, maxChars int) string {
	markerLen := utf8.RuneCountInString(TruncationMarker)
	if maxChars <= markerLen {
		return truncateRunes(text, maxChars)
	}
	return truncateRunes(text, maxChars-markerLen) + TruncationMarker
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
