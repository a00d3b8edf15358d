// Package exechost runs units as local subprocesses. Each unit speaks
// newline-delimited JSON: messages to the unit are written to its stdin
// and every line it prints on stdout is one message to the manager.
package exechost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/unitd/internal/host"
	"github.com/mattjoyce/unitd/internal/log"
	"github.com/mattjoyce/unitd/internal/manifest"
	"github.com/mattjoyce/unitd/internal/protocol"
)

const (
	// maxStderrBytes caps the stderr captured from a unit.
	maxStderrBytes = 64 * 1024

	// terminationGracePeriod is the time we wait after SIGTERM before sending SIGKILL.
	terminationGracePeriod = 2 * time.Second
)

// Host launches units from BinDir.
type Host struct {
	BinDir string
	Arch   string
	logger *slog.Logger
}

// New creates an exec host resolving executables under binDir and manifest
// programs for arch.
func New(binDir, arch string) *Host {
	return &Host{
		BinDir: binDir,
		Arch:   arch,
		logger: log.WithComponent("exechost"),
	}
}

// Name implements host.Host.
func (h *Host) Name() string { return "exec" }

// Resolve returns the path of the program a spec launches.
func (h *Host) Resolve(spec host.LaunchSpec) (string, error) {
	var path string
	if len(spec.Manifest) > 0 {
		if u := manifest.ProgramURL(spec.Manifest, h.Arch); u != "" {
			switch {
			case strings.HasPrefix(u, "file://"):
				path = strings.TrimPrefix(u, "file://")
			case !strings.Contains(u, "://"):
				path = u
			default:
				return "", fmt.Errorf("%w: unsupported program url %q", host.ErrNotFound, u)
			}
		}
	}
	if path == "" {
		if spec.Executable == "" || strings.Contains(spec.Executable, "..") {
			return "", fmt.Errorf("%w: %q", host.ErrNotFound, spec.Executable)
		}
		path = filepath.Join(h.BinDir, filepath.Base(spec.Executable))
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", host.ErrNotFound, path)
	}
	return path, nil
}

// Launch starts the unit. Start failures are reported as an error event,
// not as a returned error, so that the session handles them like any
// other load failure.
func (h *Host) Launch(ctx context.Context, spec host.LaunchSpec, sink host.Sink) (host.Unit, error) {
	u := &unit{
		pid:    spec.PID,
		sink:   sink,
		done:   make(chan struct{}),
		logger: h.logger.With("pid", spec.PID, "command", spec.Command),
	}

	path, err := h.Resolve(spec)
	if err != nil {
		u.fail(err)
		return u, nil
	}

	var args []string
	if len(spec.Args) > 1 {
		args = spec.Args[1:]
	}
	cmd := exec.Command(path, args...)
	cmd.Dir = spec.Cwd
	if cmd.Dir != "" {
		if info, err := os.Stat(cmd.Dir); err != nil || !info.IsDir() {
			cmd.Dir = ""
		}
	}
	cmd.Env = append(os.Environ(), envList(spec.Params)...)
	cmd.Stderr = &u.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		u.fail(fmt.Errorf("create stdin pipe: %w", err))
		return u, nil
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		u.fail(fmt.Errorf("create stdout pipe: %w", err))
		return u, nil
	}

	u.logger.Debug("starting unit", "path", path, "args", args)
	if err := cmd.Start(); err != nil {
		u.fail(fmt.Errorf("start process: %w", err))
		return u, nil
	}
	u.cmd = cmd
	u.stdin = stdin

	go u.read(stdout)
	return u, nil
}

func envList(params map[string]string) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+params[k])
	}
	return out
}

type unit struct {
	pid    int
	sink   host.Sink
	cmd    *exec.Cmd
	logger *slog.Logger

	mu     sync.Mutex
	stdin  io.WriteCloser
	closed bool
	stderr limitedBuffer

	done chan struct{}
}

func (u *unit) PID() int { return u.pid }

func (u *unit) fail(err error) {
	u.logger.Warn("unit failed to start", "error", err)
	close(u.done)
	go u.emit(host.Event{Kind: host.EventError, PID: u.pid, Err: loadErrorText(err)})
}

func loadErrorText(err error) string {
	if errors.Is(err, host.ErrNotFound) {
		return "No such file or directory"
	}
	return err.Error()
}

// emit delivers ev unless the unit was closed.
func (u *unit) emit(ev host.Event) {
	u.mu.Lock()
	closed := u.closed
	u.mu.Unlock()
	if !closed {
		u.sink.Deliver(ev)
	}
}

// read reports the load, relays every line as a message and finally
// synthesizes an exit event if the unit never announced one.
func (u *unit) read(stdout io.Reader) {
	defer close(u.done)
	u.emit(host.Event{Kind: host.EventLoad, PID: u.pid})

	sawExit := false
	r := protocol.NewLineReader(stdout)
	for {
		raw, err := r.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				u.logger.Warn("unit stream error", "error", err)
			}
			break
		}
		if isExitMessage(raw) {
			sawExit = true
		}
		u.emit(host.Event{Kind: host.EventMessage, PID: u.pid, Message: raw})
	}

	err := u.cmd.Wait()
	if s := u.stderr.String(); s != "" {
		u.logger.Debug("unit stderr", "stderr", s)
	}
	if sawExit {
		return
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		u.emit(host.Event{Kind: host.EventExit, PID: u.pid, Status: 0})
	case errors.As(err, &exitErr):
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			u.emit(host.Event{Kind: host.EventCrash, PID: u.pid, Status: protocol.CrashStatus})
			return
		}
		u.emit(host.Event{Kind: host.EventExit, PID: u.pid, Status: exitErr.ExitCode()})
	default:
		u.logger.Error("wait for unit failed", "error", err)
		u.emit(host.Event{Kind: host.EventCrash, PID: u.pid, Status: protocol.CrashStatus})
	}
}

func isExitMessage(raw []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(raw), []byte(`"`+protocol.ExitPrefix))
}

// Post implements host.Unit.
func (u *unit) Post(msg any) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed || u.stdin == nil {
		return fmt.Errorf("unit %d is not running", u.pid)
	}
	return protocol.EncodeLine(u.stdin, msg)
}

// Close stops event delivery and, if the process is still running,
// terminates it in the background.
func (u *unit) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	if u.stdin != nil {
		_ = u.stdin.Close()
	}
	u.mu.Unlock()

	if u.cmd == nil || u.cmd.Process == nil {
		return nil
	}
	select {
	case <-u.done:
		return nil
	default:
	}
	go u.terminate()
	return nil
}

func (u *unit) terminate() {
	if err := u.cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		u.logger.Error("failed to send SIGTERM", "error", err)
	}
	grace := time.NewTimer(terminationGracePeriod)
	defer grace.Stop()
	select {
	case <-u.done:
	case <-grace.C:
		u.logger.Warn("unit did not exit after SIGTERM, sending SIGKILL")
		if err := u.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			u.logger.Error("failed to send SIGKILL", "error", err)
			return
		}
		<-u.done
	}
}

// limitedBuffer keeps the first maxStderrBytes written to it.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := maxStderrBytes - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
