package api

import "github.com/mattjoyce/unitd/internal/process"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	SessionID     string `json:"session_id,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Running       int    `json:"running"`
	Zombies       int    `json:"zombies"`
	PendingWaits  int    `json:"pending_waits"`
	Foreground    int    `json:"foreground"`
}

// Process is one row of GET /processes.
type Process struct {
	PID     int    `json:"pid"`
	Parent  int    `json:"parent"`
	Command string `json:"command,omitempty"`
	State   string `json:"state"`
	Ready   bool   `json:"ready"`
	Status  *int   `json:"status,omitempty"`
	// Foreground marks the unit that currently owns terminal input.
	Foreground bool `json:"foreground,omitempty"`
}

// ProcessesResponse is returned by GET /processes.
type ProcessesResponse struct {
	SessionID  string    `json:"session_id"`
	Foreground int       `json:"foreground"`
	Finished   bool      `json:"finished"`
	Processes  []Process `json:"processes"`
}

// TTYFrame is a client-to-server websocket frame on /tty.
type TTYFrame struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

func processFromEntry(e process.Entry, fg int) Process {
	p := Process{PID: e.PID, State: process.StateRunning.String()}
	if e.Handle != nil {
		p.Parent = e.Handle.Parent
		p.Command = e.Handle.Command
		p.State = e.Handle.State.String()
		p.Ready = e.Handle.Ready
	}
	if e.Exited {
		status := e.Status
		p.Status = &status
		p.State = "zombie"
	}
	p.Foreground = e.PID == fg && !e.Exited
	return p
}
