// Package events is the in-memory lifecycle feed. The session publishes
// one event per unit transition; the journal, the SSE endpoint and the
// monitor subscribe to it.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Lifecycle event types.
const (
	UnitSpawned       = "unit.spawned"
	UnitLoaded        = "unit.loaded"
	UnitLoadFailed    = "unit.load_failed"
	UnitExited        = "unit.exited"
	UnitReaped        = "unit.reaped"
	UnitZombie        = "unit.zombie"
	ForegroundChanged = "foreground.changed"
	SessionFinished   = "session.finished"
	MessageDropped    = "message.dropped"
)

// UnitEvent is the payload of every unit.* event. Fields that do not apply
// to a transition are omitted.
type UnitEvent struct {
	SessionID string `json:"session_id"`
	PID       int    `json:"pid"`
	Parent    int    `json:"parent,omitempty"`
	Command   string `json:"command,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Status    *int   `json:"status,omitempty"`
	Crashed   bool   `json:"crashed,omitempty"`
	Error     string `json:"error,omitempty"`
	// Foreground is the new owner for foreground.changed.
	Foreground int `json:"foreground,omitempty"`
	// Kind names the dropped message kind for message.dropped.
	Kind string `json:"kind,omitempty"`
}

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Hub is an in-memory pub/sub with a small ring buffer for late clients.
type Hub struct {
	nextID  atomic.Int64
	dropped atomic.Int64

	mu    sync.Mutex
	ring  []Event
	start int
	size  int

	subs      map[int]chan Event
	nextSubID int
}

func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 100
	}
	return &Hub{
		ring: make([]Event, capacity),
		subs: make(map[int]chan Event),
	}
}

func (h *Hub) Publish(eventType string, data any) {
	id := h.nextID.Add(1)

	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	ev := Event{
		ID:   id,
		Type: eventType,
		At:   time.Now().UTC(),
		Data: payload,
	}

	h.mu.Lock()
	h.pushLocked(ev)
	for _, ch := range h.subs {
		// Don't let slow clients block producers.
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
	h.mu.Unlock()
}

// Subscribe registers a subscriber with the default buffer.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	return h.SubscribeBuffered(128)
}

// SubscribeBuffered registers a subscriber whose channel holds up to n
// undelivered events. Events published while it is full are dropped for
// that subscriber only.
func (h *Hub) SubscribeBuffered(n int) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, n)
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		if c, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(c)
		}
		h.mu.Unlock()
	}

	return ch, cancel
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// SnapshotSince returns buffered events with ID > lastID, oldest-first.
// If lastID is 0, the full ring buffer snapshot is returned.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, 0, h.size)
	for i := 0; i < h.size; i++ {
		ev := h.ring[(h.start+i)%len(h.ring)]
		if lastID == 0 || ev.ID > lastID {
			out = append(out, ev)
		}
	}
	return out
}

func (h *Hub) pushLocked(ev Event) {
	capacity := len(h.ring)
	if capacity == 0 {
		return
	}

	if h.size < capacity {
		idx := (h.start + h.size) % capacity
		h.ring[idx] = ev
		h.size++
		return
	}

	// Overwrite oldest.
	h.ring[h.start] = ev
	h.start = (h.start + 1) % capacity
}
