// Package output routes unit output to the session display. Output from a
// unit that has not finished loading is held back and flushed, in arrival
// order, once the unit reports ready.
package output

import (
	"strings"
	"sync"
)

// ANSI sequences written around session status text.
const (
	ANSICyan  = "\x1b[36m"
	ANSIReset = "\x1b[0m"
)

// Display is the sink for terminal text.
type Display interface {
	Print(s string)
}

// Mux buffers output per unit until that unit is ready.
type Mux struct {
	mu      sync.Mutex
	display Display
	pending map[int]*strings.Builder
	ready   map[int]bool
}

// NewMux returns a multiplexer writing to d.
func NewMux(d Display) *Mux {
	return &Mux{
		display: d,
		pending: make(map[int]*strings.Builder),
		ready:   make(map[int]bool),
	}
}

// Write prints text for pid, or buffers it while pid is still loading.
func (m *Mux) Write(pid int, text string) {
	if text == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready[pid] {
		m.display.Print(text)
		return
	}
	b, ok := m.pending[pid]
	if !ok {
		b = &strings.Builder{}
		m.pending[pid] = b
	}
	b.WriteString(text)
}

// MarkReady flushes anything buffered for pid and passes later output
// straight through.
func (m *Mux) MarkReady(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ready[pid] = true
	if b, ok := m.pending[pid]; ok {
		delete(m.pending, pid)
		if b.Len() > 0 {
			m.display.Print(b.String())
		}
	}
}

// Forget drops any state held for pid. Buffered output is discarded.
func (m *Mux) Forget(pid int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, pid)
	delete(m.ready, pid)
}

// Buffered returns the number of bytes held for pid.
func (m *Mux) Buffered(pid int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.pending[pid]; ok {
		return b.Len()
	}
	return 0
}

// Print writes session status text directly to the display.
func (m *Mux) Print(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.display.Print(s)
}
