package extract

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// decodePDF reads the text layer of a PDF. Scanned pages without a text layer
// yield no text; there is no OCR.
func decodePDF(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = corrupt("pdf", fmt.Errorf("parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", corrupt("pdf", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", corrupt("pdf", err)
	}

	b, err := io.ReadAll(plain)
	if err != nil {
		return "", corrupt("pdf", err)
	}
	return string(b), nil
}
