// Package tty provides the displays a session prints to: a writer-backed
// terminal for local runs and a broadcast display with scrollback for
// remote clients.
package tty

import (
	"io"
	"strings"
	"sync"
)

// Writer prints to an io.Writer. With AutoCR set, bare "\n" is written as
// "\r\n" for terminals in raw mode.
type Writer struct {
	mu     sync.Mutex
	w      io.Writer
	autoCR bool
}

// NewWriter returns a display writing to w.
func NewWriter(w io.Writer, autoCR bool) *Writer {
	return &Writer{w: w, autoCR: autoCR}
}

// Print implements output.Display. Write errors are ignored; a display
// that went away must not stop the session.
func (d *Writer) Print(s string) {
	if d.autoCR {
		s = crlf(s)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, _ = io.WriteString(d.w, s)
}

func crlf(s string) string {
	if !strings.Contains(s, "\n") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && (i == 0 || s[i-1] != '\r') {
			b.WriteByte('\r')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Multi prints to every display in order.
type Multi []interface{ Print(string) }

func (m Multi) Print(s string) {
	for _, d := range m {
		d.Print(s)
	}
}
