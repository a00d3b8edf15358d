package journal

import (
	"errors"
	"time"
)

// State is the last lifecycle state recorded for a unit.
type State string

const (
	StateRunning    State = "running"
	StateExited     State = "exited"
	StateReaped     State = "reaped"
	StateLoadFailed State = "load_failed"
)

var ErrNotFound = errors.New("journal entry not found")

// Record is one row of unit history.
type Record struct {
	SessionID string     `json:"session_id"`
	PID       int        `json:"pid"`
	Parent    int        `json:"parent"`
	Command   string     `json:"command"`
	Digest    *string    `json:"digest,omitempty"`
	State     State      `json:"state"`
	Status    *int       `json:"status,omitempty"`
	Crashed   bool       `json:"crashed"`
	Error     *string    `json:"error,omitempty"`
	SpawnedAt time.Time  `json:"spawned_at"`
	LoadedAt  *time.Time `json:"loaded_at,omitempty"`
	ExitedAt  *time.Time `json:"exited_at,omitempty"`
	ReapedAt  *time.Time `json:"reaped_at,omitempty"`
}

// Session is one recorded session.
type Session struct {
	ID         string     `json:"id"`
	Prefix     string     `json:"prefix"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     *int       `json:"status,omitempty"`
}

// Filter selects history rows. Zero values mean "any".
type Filter struct {
	SessionID string
	Limit     int
}
