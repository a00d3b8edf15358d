package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// waitpid/spawn constants as seen on the wire.
const (
	// WNOHANG is the "no hang" flag for wait requests.
	WNOHANG = 1

	// Errno values carried back as negative pids.
	ENOENT = 2
	ESRCH  = 3
	ECHILD = 10
	EAGAIN = 11

	// AnyChild is the wildcard wait target.
	AnyChild = -1

	// CrashStatus is the exit status reported for a unit that crashed.
	CrashStatus = -1

	// ResizeKey is the key of the resize notification sent to units.
	ResizeKey = "tty_resize"

	// ExitPrefix starts every exit notification ("exited:<code>").
	ExitPrefix = "exited"
)

// RequestID is the opaque id a unit attaches to a request. Units may send it
// as a JSON string or number; it is normalized to its string form and echoed
// back as the key of the reply object.
type RequestID string

func (id *RequestID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = RequestID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("request id must be a string or number: %w", err)
	}
	*id = RequestID(n.String())
	return nil
}

// SpawnRequest asks the manager to start a child unit.
type SpawnRequest struct {
	Command string          `json:"command"`
	ID      RequestID       `json:"id"`
	Args    []string        `json:"args"`
	Envs    []string        `json:"envs"`
	Cwd     string          `json:"cwd"`
	NMF     json.RawMessage `json:"nmf,omitempty"`
}

// Executable returns args[0], the name of the program to run.
func (r *SpawnRequest) Executable() string {
	if len(r.Args) == 0 {
		return ""
	}
	return r.Args[0]
}

// HasManifest reports whether the request carries an inline manifest.
func (r *SpawnRequest) HasManifest() bool {
	n := bytes.TrimSpace(r.NMF)
	return len(n) > 0 && !bytes.Equal(n, []byte("null")) && !bytes.Equal(n, []byte(`""`))
}

// WaitRequest is a waitpid(pid, options) call.
type WaitRequest struct {
	Command string    `json:"command"`
	ID      RequestID `json:"id"`
	PID     int       `json:"pid"`
	Options int       `json:"options"`
}

// NoHang reports whether WNOHANG was requested.
func (r *WaitRequest) NoHang() bool {
	return r.Options&WNOHANG != 0
}

// SetForegroundRequest hands the interactive terminal to PID.
type SetForegroundRequest struct {
	Command string    `json:"command"`
	ID      RequestID `json:"id"`
	PID     int       `json:"pid"`
}

// Reply is the value half of a {"<id>": {...}} response.
type Reply struct {
	PID    int  `json:"pid"`
	Status *int `json:"status,omitempty"`
}

// PIDReply answers a spawn or setfg request.
func PIDReply(pid int) Reply {
	return Reply{PID: pid}
}

// StatusReply answers a wait request.
func StatusReply(pid, status int) Reply {
	return Reply{PID: pid, Status: &status}
}

// ErrnoReply answers any request with a negative errno pid.
func ErrnoReply(errno int) Reply {
	return Reply{PID: -errno}
}

// Envelope wraps a reply under its request id.
func Envelope(id RequestID, r Reply) map[string]Reply {
	return map[string]Reply{string(id): r}
}

// ResizeMessage is posted to the foreground unit when the terminal size changes.
func ResizeMessage(cols, rows int) map[string][2]int {
	return map[string][2]int{ResizeKey: {cols, rows}}
}

// KeystrokeMessage carries raw terminal input under the session prefix.
func KeystrokeMessage(prefix, keys string) map[string]string {
	return map[string]string{prefix: keys}
}

// ParseExitCode extracts the status from "exited:<code>". Like a lenient
// integer parse it accepts leading digits; anything else yields 0.
func ParseExitCode(s string) int {
	_, rest, ok := cutColon(s)
	if !ok {
		return 0
	}
	i := 0
	for i < len(rest) && (rest[i] == ' ' || rest[i] == '\t') {
		i++
	}
	start := i
	if i < len(rest) && (rest[i] == '-' || rest[i] == '+') {
		i++
	}
	digits := i
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i == digits {
		return 0
	}
	n, err := strconv.Atoi(rest[start:i])
	if err != nil {
		return 0
	}
	return n
}

func cutColon(s string) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
