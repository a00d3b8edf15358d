// Package memhost is an in-process Host that records launches and posted
// messages. Units do nothing on their own; callers drive them by emitting
// events. With AutoLoad set, every unit reports a load as soon as it is
// launched.
package memhost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mattjoyce/unitd/internal/host"
)

// Host records launched units.
type Host struct {
	// AutoLoad emits a load event for every launched unit.
	AutoLoad bool
	// Unsupported makes Launch return host.ErrUnsupported.
	Unsupported bool

	mu    sync.Mutex
	units []*Unit
}

// New returns an empty memory host.
func New() *Host {
	return &Host{}
}

// Name implements host.Host.
func (h *Host) Name() string { return "mem" }

// Launch implements host.Host.
func (h *Host) Launch(_ context.Context, spec host.LaunchSpec, sink host.Sink) (host.Unit, error) {
	if h.Unsupported {
		return nil, host.ErrUnsupported
	}
	u := &Unit{spec: spec, sink: sink}

	h.mu.Lock()
	h.units = append(h.units, u)
	h.mu.Unlock()

	if h.AutoLoad {
		go u.Load()
	}
	return u, nil
}

// Units returns every launched unit in launch order.
func (h *Host) Units() []*Unit {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Unit, len(h.units))
	copy(out, h.units)
	return out
}

// Unit returns the unit launched with pid.
func (h *Host) Unit(pid int) (*Unit, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, u := range h.units {
		if u.spec.PID == pid {
			return u, true
		}
	}
	return nil, false
}

// Unit is a recorded launch.
type Unit struct {
	spec host.LaunchSpec
	sink host.Sink

	mu     sync.Mutex
	posted []json.RawMessage
	closed bool
}

// PID implements host.Unit.
func (u *Unit) PID() int { return u.spec.PID }

// Spec returns the launch spec.
func (u *Unit) Spec() host.LaunchSpec { return u.spec }

// Post implements host.Unit.
func (u *Unit) Post(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return fmt.Errorf("unit %d is closed", u.spec.PID)
	}
	u.posted = append(u.posted, b)
	return nil
}

// Posted returns the messages posted to the unit so far.
func (u *Unit) Posted() []json.RawMessage {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]json.RawMessage, len(u.posted))
	copy(out, u.posted)
	return out
}

// Close implements host.Unit.
func (u *Unit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	return nil
}

// Closed reports whether Close was called.
func (u *Unit) Closed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

// Load emits a load event.
func (u *Unit) Load() { u.emit(host.Event{Kind: host.EventLoad}) }

// Progress emits a progress event.
func (u *Unit) Progress(url string, loaded, total int64) {
	u.emit(host.Event{Kind: host.EventProgress, URL: url, Loaded: loaded, Total: total})
}

// Fail emits a load error.
func (u *Unit) Fail(msg string) { u.emit(host.Event{Kind: host.EventError, Err: msg}) }

// Abort emits a load abort.
func (u *Unit) Abort() { u.emit(host.Event{Kind: host.EventAbort}) }

// Send emits a message from the unit. v is JSON-encoded.
func (u *Unit) Send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	u.emit(host.Event{Kind: host.EventMessage, Message: b})
}

// Exit emits the unit's exit notification message.
func (u *Unit) Exit(code int) {
	u.Send(fmt.Sprintf("exited:%d", code))
}

// Crash emits a crash event.
func (u *Unit) Crash() { u.emit(host.Event{Kind: host.EventCrash, Status: -1}) }

func (u *Unit) emit(ev host.Event) {
	ev.PID = u.spec.PID
	u.sink.Deliver(ev)
}
