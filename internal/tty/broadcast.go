package tty

import (
	"sync"
)

// DefaultScrollback is the number of bytes of output kept for late clients.
const DefaultScrollback = 64 * 1024

// Broadcast fans output out to subscribers and keeps a bounded scrollback
// so that a client attaching mid-session sees recent output.
type Broadcast struct {
	mu        sync.Mutex
	limit     int
	buf       []byte
	subs      map[int]chan string
	nextSubID int
}

// NewBroadcast returns a display keeping up to limit bytes of scrollback.
func NewBroadcast(limit int) *Broadcast {
	if limit <= 0 {
		limit = DefaultScrollback
	}
	return &Broadcast{limit: limit, subs: make(map[int]chan string)}
}

// Print implements output.Display.
func (b *Broadcast) Print(s string) {
	if s == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, s...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Scrollback returns the retained output.
func (b *Broadcast) Scrollback() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Attach returns the current scrollback and a channel receiving all later
// output. The scrollback and the channel never overlap or leave a gap.
func (b *Broadcast) Attach() (string, <-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextSubID
	b.nextSubID++
	ch := make(chan string, 256)
	b.subs[id] = ch

	detach := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return string(b.buf), ch, detach
}
