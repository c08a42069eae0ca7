package extract

import (
	"bufio"
	"bytes"
	"strings"
)

const maxLineBytes = 4 << 20

// decodeText joins the lines of a UTF-8 text file with "\n". Invalid byte
// sequences are replaced rather than rejected.
func decodeText(data []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var b strings.Builder
	for sc.Scan() {
		b.WriteString(sc.Text())
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return "", corrupt("text", err)
	}

	return strings.ToValidUTF8(b.String(), "�"), nil
}
