package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
)

const (
	MediaTypePDF  = "application/pdf"
	MediaTypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaTypeText = "text/plain"
)

var (
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrCorruptDocument      = errors.New("corrupt document")
	ErrDocumentTooLarge     = errors.New("document too large")

	// ErrNoText reports a document that decoded cleanly but holds no text.
	// It is an outcome, not a failure: callers record "nothing to index".
	ErrNoText = errors.New("no extractable text")
)

// DefaultMaxBytes caps how much of a document is buffered for decoding.
const DefaultMaxBytes = 50 << 20

type decodeFunc func(data []byte) (string, error)

// Extractor turns a raw document into plain text, choosing a decoder by
// media type.
type Extractor struct {
	decoders map[string]decodeFunc
	maxBytes int64
}

func New(maxBytes int64) *Extractor {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Extractor{
		decoders: map[string]decodeFunc{
			MediaTypePDF:  decodePDF,
			MediaTypeDOCX: decodeDOCX,
			MediaTypeText: decodeText,
		},
		maxBytes: maxBytes,
	}
}

// Supports reports whether mediaType has a decoder. Parameters such as
// charset are ignored.
func (e *Extractor) Supports(mediaType string) bool {
	_, ok := e.decoders[baseType(mediaType)]
	return ok
}

// Extract reads r fully and decodes it. Unknown media types fail before the
// stream is read.
func (e *Extractor) Extract(ctx context.Context, r io.Reader, mediaType string) (string, error) {
	mt := baseType(mediaType)
	decode, ok := e.decoders[mt]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	if int64(len(data)) > e.maxBytes {
		return "", fmt.Errorf("%w: exceeds %d bytes", ErrDocumentTooLarge, e.maxBytes)
	}

	text, err := decode(data)
	if err != nil {
		slog.WarnContext(ctx, "document decode failed", "media_type", mt, "size", len(data), "error", err)
		return "", err
	}

	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}

	slog.DebugContext(ctx, "document extracted", "media_type", mt, "size", len(data), "chars", len(text))
	return text, nil
}

func baseType(mediaType string) string {
	mt, _, err := mime.ParseMediaType(mediaType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(mediaType))
	}
	return mt
}

// DetectMediaType maps a file name to one of the supported media types, or
// "" when the extension is not recognised.
func DetectMediaType(filename string) string {
	name := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(name, ".pdf"):
		return MediaTypePDF
	case strings.HasSuffix(name, ".docx"):
		return MediaTypeDOCX
	case strings.HasSuffix(name, ".txt"), strings.HasSuffix(name, ".md"):
		return MediaTypeText
	}
	return ""
}

func corrupt(format string, cause error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorruptDocument, format, cause)
}
