package process

import (
	"time"

	"github.com/mattjoyce/unitd/internal/protocol"
)

// State is the lifecycle state of a unit.
type State int

const (
	StateLoading State = iota
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// Handle describes one execution unit. Parent links are pids (0 for the
// root) resolved through the Table arena, never pointers.
type Handle struct {
	PID        int
	Parent     int
	Command    string
	SpawnReqID protocol.RequestID
	State      State
	Ready      bool
	SpawnedAt  time.Time
}

// IsRoot reports whether the unit has no parent.
func (h *Handle) IsRoot() bool {
	return h.Parent == 0
}

// Terminated reports whether the unit has exited.
func (h *Handle) Terminated() bool {
	return h.State == StateExited
}

// RoutePID returns the pid input should be routed to, or -1 once the unit
// has terminated.
func (h *Handle) RoutePID() int {
	if h.Terminated() {
		return -1
	}
	return h.PID
}

// TakeSpawnRequest returns the pending spawn request id and clears it so
// the spawner is answered at most once.
func (h *Handle) TakeSpawnRequest() (protocol.RequestID, bool) {
	id := h.SpawnReqID
	h.SpawnReqID = ""
	return id, id != ""
}
