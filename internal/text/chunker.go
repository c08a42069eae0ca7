package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxChunkLength = 500
	DefaultOverlap        = 50
	DefaultWordWindow     = 200
	DefaultWordOverlap    = 50
)

// sentenceBoundary matches a terminator and the whitespace after it.
// Sentences keep their terminator; the whitespace is discarded.
var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// Chunker splits extracted document text into bounded, overlapping passages.
//
// The primary path is sentence-aware: sentences are accumulated greedily until
// the next one would push the chunk past the maximum length. The closed chunk
// seeds the next one with its trailing overlap, snapped to a sentence boundary
// when one exists inside the overlap window. A single sentence longer than the
// maximum is emitted whole.
//
// Text with no usable sentence structure (fewer than two chunks while longer
// than the maximum) falls back to fixed word windows.
type Chunker struct {
	maxLen      int
	overlap     int
	wordWindow  int
	wordOverlap int
}

type Option func(*Chunker)

// WithMaxChunkLength sets the maximum chunk length in characters.
func WithMaxChunkLength(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxLen = n
		}
	}
}

// WithOverlap sets the trailing character overlap carried into the next chunk.
func WithOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithWordWindow sets the window size, in words, of the fallback splitter.
func WithWordWindow(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.wordWindow = n
		}
	}
}

// WithWordOverlap sets how many words consecutive fallback windows share.
func WithWordOverlap(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.wordOverlap = n
		}
	}
}

func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{
		maxLen:      DefaultMaxChunkLength,
		overlap:     DefaultOverlap,
		wordWindow:  DefaultWordWindow,
		wordOverlap: DefaultWordOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.maxLen {
		c.overlap = c.maxLen - 1
	}
	if c.wordOverlap >= c.wordWindow {
		c.wordOverlap = c.wordWindow - 1
	}
	return c
}

// Split returns the ordered chunks of text. Empty or blank input yields an
// empty slice.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return []string{}
	}

	chunks := c.splitBySentences(text)
	if len(chunks) < 2 && utf8.RuneCountInString(text) > c.maxLen {
		return c.splitByWords(text)
	}
	return chunks
}

func (c *Chunker) splitBySentences(text string) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	for _, sentence := range SplitSentences(text) {
		sLen := utf8.RuneCountInString(sentence)

		if curLen > 0 && curLen+1+sLen > c.maxLen {
			closed := cur.String()
			chunks = append(chunks, closed)

			cur.Reset()
			curLen = 0

			// The seed is dropped when it cannot share a chunk with the
			// sentence that forced the split.
			seed := c.overlapSeed(closed)
			if seedLen := utf8.RuneCountInString(seed); seedLen > 0 && seedLen+1+sLen <= c.maxLen {
				cur.WriteString(seed)
				curLen = seedLen
			}
		}

		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(sentence)
		curLen += sLen
	}

	if curLen > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// overlapSeed returns the trailing overlap of a closed chunk. The window is
// the last c.overlap characters; it starts after the last sentence boundary
// inside the window, or after the first word break when the window has none.
func (c *Chunker) overlapSeed(chunk string) string {
	if c.overlap == 0 {
		return ""
	}

	runes := []rune(chunk)
	start := len(runes) - c.overlap
	if start <= 0 {
		start = 0
	}
	window := string(runes[start:])

	if m := sentenceBoundary.FindAllStringIndex(window, -1); len(m) > 0 {
		return strings.TrimSpace(window[m[len(m)-1][1]:])
	}

	if start == 0 || unicode.IsSpace(runes[start-1]) {
		return strings.TrimSpace(window)
	}

	idx := strings.IndexFunc(window, unicode.IsSpace)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(window[idx:])
}

func (c *Chunker) splitByWords(text string) []string {
	words := strings.Fields(text)
	stride := c.wordWindow - c.wordOverlap

	var chunks []string
	for start := 0; start < len(words); start += stride {
		end := start + c.wordWindow
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}

// SplitSentences splits text after every '.', '!' or '?' that is followed by
// whitespace. Terminators stay with their sentence.
func SplitSentences(text string) []string {
	var sentences []string
	prev := 0
	for _, m := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[prev : m[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		prev = m[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
