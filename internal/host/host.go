// Package host defines the substrate that actually runs units. The
// session asks a Host to launch a unit and receives the unit's lifecycle
// and messages back as Events through a Sink.
package host

import (
	"context"
	"encoding/json"
	"errors"
)

//go:generate mockgen -destination=mocks/mock_host.go -package=mocks github.com/mattjoyce/unitd/internal/host Host,Unit

var (
	// ErrUnsupported is returned by Launch when the substrate is not available.
	ErrUnsupported = errors.New("host substrate not supported")
	// ErrNotFound is returned when the unit's program cannot be located.
	ErrNotFound = errors.New("program not found")
)

// EventKind identifies a host event.
type EventKind int

const (
	EventLoad EventKind = iota
	EventProgress
	EventError
	EventAbort
	EventMessage
	EventExit
	EventCrash
)

func (k EventKind) String() string {
	switch k {
	case EventLoad:
		return "load"
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	case EventAbort:
		return "abort"
	case EventMessage:
		return "message"
	case EventExit:
		return "exit"
	case EventCrash:
		return "crash"
	default:
		return "unknown"
	}
}

// Event is something that happened to a launched unit.
type Event struct {
	Kind EventKind
	PID  int

	// Message carries one JSON value for EventMessage.
	Message json.RawMessage

	// Progress fields.
	URL    string
	Loaded int64
	Total  int64

	// Err is the load error text for EventError.
	Err string

	// Status is the exit status for EventExit.
	Status int
}

// Sink receives host events. Deliver must be safe for concurrent use.
type Sink interface {
	Deliver(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Deliver(ev Event) { f(ev) }

// LaunchSpec describes a unit to start.
type LaunchSpec struct {
	PID        int
	Command    string
	Executable string
	Args       []string
	Cwd        string
	// Params are the unit's launch parameters, see BuildParams.
	Params map[string]string
	// Manifest is the rewritten inline manifest, nil when launching from
	// ManifestName.
	Manifest     []byte
	ManifestName string
}

// Unit is a launched unit.
type Unit interface {
	PID() int
	// Post sends a JSON-encodable message to the unit.
	Post(msg any) error
	// Close releases the unit. No events are delivered after Close returns.
	Close() error
}

// Host starts units.
type Host interface {
	// Name names the substrate for user-facing messages.
	Name() string
	Launch(ctx context.Context, spec LaunchSpec, sink Sink) (Unit, error)
}
