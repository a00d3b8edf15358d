package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxLineBytes caps a single JSON-lines message read from a unit.
const maxLineBytes = 4 * 1024 * 1024

// EncodeLine serializes v as one JSON line and writes it to w.
func EncodeLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	b = append(b, '\n')
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

// LineReader reads newline-delimited JSON values from a unit.
type LineReader struct {
	scanner *bufio.Scanner
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &LineReader{scanner: s}
}

// Next returns the next non-empty line as raw JSON. Lines that are not
// valid JSON are returned as a JSON string so the dispatcher can still
// classify (and drop) them. io.EOF is returned at end of stream.
func (l *LineReader) Next() (json.RawMessage, error) {
	for l.scanner.Scan() {
		line := l.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if json.Valid(line) {
			out := make([]byte, len(line))
			copy(out, line)
			return json.RawMessage(out), nil
		}
		quoted, err := json.Marshal(string(line))
		if err != nil {
			return nil, fmt.Errorf("failed to quote raw line: %w", err)
		}
		return json.RawMessage(quoted), nil
	}
	if err := l.scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return nil, io.EOF
}
