package dispatch

import (
	"fmt"

	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/host"
	"github.com/mattjoyce/unitd/internal/manifest"
	"github.com/mattjoyce/unitd/internal/output"
	"github.com/mattjoyce/unitd/internal/process"
	"github.com/mattjoyce/unitd/internal/protocol"
)

func (s *Session) handleEvent(ev host.Event) {
	if s.finished {
		s.logger.Debug("session finished, ignoring event", "pid", ev.PID, "kind", ev.Kind.String())
		return
	}
	h, ok := s.table.Handle(ev.PID)
	if !ok || h.Terminated() {
		s.logger.Debug("event for unknown unit", "pid", ev.PID, "kind", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case host.EventLoad:
		s.loaded(h)
	case host.EventProgress:
		s.loadProgress(h, ev)
	case host.EventError:
		s.loadFailed(h, h.Command+": "+ev.Err+"\n", ev.Err)
	case host.EventAbort:
		s.loadFailed(h, "Load aborted.\n", "aborted")
	case host.EventMessage:
		s.handleMessage(h, ev.Message)
	case host.EventExit:
		s.exit(h, ev.Status, false)
	case host.EventCrash:
		s.exit(h, protocol.CrashStatus, true)
	}
}

// loaded marks h ready, answers its spawner and releases buffered output.
func (s *Session) loaded(h *process.Handle) {
	if h.Ready {
		return
	}
	h.State = process.StateRunning
	h.Ready = true

	if id, ok := h.TakeSpawnRequest(); ok {
		s.reply(h.Parent, id, protocol.PIDReply(h.PID))
	}
	if h.IsRoot() {
		s.print(s.progress.Done(s.cols))
	}
	s.mux.MarkReady(h.PID)

	s.logger.Debug("unit loaded", "pid", h.PID)
	s.publish(events.UnitLoaded, events.UnitEvent{PID: h.PID, Parent: h.Parent, Command: h.Command})
}

// loadProgress renders download progress for the root unit only.
func (s *Session) loadProgress(h *process.Handle, ev host.Event) {
	if !h.IsRoot() || h.Ready {
		return
	}
	s.print(s.progress.Update(ev.URL, ev.Loaded, ev.Total, s.cols))
}

// loadFailed removes a unit that never loaded. Its spawner learns
// -ENOENT and the foreground goes to the nearest live ancestor; no zombie
// is kept.
func (s *Session) loadFailed(h *process.Handle, text, reason string) {
	if h.Ready {
		s.logger.Warn("load failure after load, treating as crash", "pid", h.PID, "reason", reason)
		s.exit(h, protocol.CrashStatus, true)
		return
	}

	if id, ok := h.TakeSpawnRequest(); ok {
		s.reply(h.Parent, id, protocol.ErrnoReply(protocol.ENOENT))
		if next := s.fg.LiveAncestor(h.Parent); next != 0 {
			s.setForeground(next)
		}
	}
	s.print(text)

	s.logger.Info("unit failed to load", "pid", h.PID, "command", h.Command, "reason", reason)
	s.publish(events.UnitLoadFailed, events.UnitEvent{PID: h.PID, Parent: h.Parent, Command: h.Command, Error: reason})
	s.metrics.UnitExited("load_error")

	parent := h.Parent
	s.deliver(s.table.Remove(h.PID))
	s.release(h.PID)
	if s.fg.Current() == h.PID {
		s.setForeground(s.fg.LiveAncestor(parent))
	}
	s.updateGauges()

	if parent == 0 {
		s.finish(h, protocol.CrashStatus)
	}
}

// exit runs the exit protocol for h.
func (s *Session) exit(h *process.Handle, status int, crashed bool) {
	kind := "exit"
	if crashed {
		kind = "crash"
	}
	s.metrics.UnitExited(kind)

	if h.IsRoot() {
		h.State = process.StateExited
		s.mux.MarkReady(h.PID)
		s.print(output.ANSICyan)
		if status == protocol.CrashStatus {
			s.print(fmt.Sprintf("Program (%s) crashed (exit status -1)\n", h.Command))
		} else {
			s.print(fmt.Sprintf("Program (%s) exited (status=%d)\n", h.Command, status))
		}
		s.publish(events.UnitExited, events.UnitEvent{PID: h.PID, Command: h.Command, Status: &status, Crashed: crashed})
		s.finish(h, status)
		return
	}

	// A unit that exits before loading still existed; its spawner learns
	// the pid so that it can collect the status.
	if id, ok := h.TakeSpawnRequest(); ok {
		s.reply(h.Parent, id, protocol.PIDReply(h.PID))
	}
	s.mux.MarkReady(h.PID)
	// A unit never collects its own status.
	s.table.Waiters().RemoveRequester(h.PID)

	ds, reaped, err := s.table.RecordExit(h.PID, status)
	if err != nil {
		s.logger.Warn("exit for unknown pid", "pid", h.PID, "error", err)
		return
	}
	s.logger.Info("unit exited", "pid", h.PID, "command", h.Command, "status", status, "crashed", crashed)
	s.publish(events.UnitExited, events.UnitEvent{PID: h.PID, Parent: h.Parent, Command: h.Command, Status: &status, Crashed: crashed})

	s.deliver(ds)
	if reaped {
		s.reaped(h.PID, ds[0].To)
	} else {
		s.publish(events.UnitZombie, events.UnitEvent{PID: h.PID, Parent: h.Parent, Status: &status})
	}

	if next, changed := s.fg.Retarget(h); changed {
		s.logger.Debug("foreground changed", "pid", next)
		s.publish(events.ForegroundChanged, events.UnitEvent{PID: next, Foreground: next})
	}
	s.release(h.PID)
	s.updateGauges()
}

// release closes a unit's host resources and forgets its pending requests.
func (s *Session) release(pid int) {
	s.table.Waiters().RemoveRequester(pid)
	s.pending.forget(pid)
	s.mux.Forget(pid)
	if u, ok := s.units[pid]; ok {
		delete(s.units, pid)
		if err := u.Close(); err != nil {
			s.logger.Warn("failed to close unit", "pid", pid, "error", err)
		}
	}
}

// finish ends the session after the root unit terminated.
func (s *Session) finish(root *process.Handle, status int) {
	s.finished = true
	for pid := range s.units {
		s.release(pid)
	}
	// Root status is kept for inspection; nothing is left to collect it.
	if _, _, err := s.table.RecordExit(root.PID, status); err == nil {
		s.updateGauges()
	}
	s.logger.Info("session finished", "status", status)
	s.publish(events.SessionFinished, events.UnitEvent{PID: root.PID, Command: root.Command, Status: &status})
	if s.cfg.OnExit != nil {
		s.after = append(s.after, func() { s.cfg.OnExit(status) })
	}
}

func (s *Session) resize(cols, rows int) {
	s.cols, s.rows = cols, rows
	if !s.started {
		s.started = true
		s.startRoot()
		return
	}
	if h, ok := s.fg.Target(); ok {
		s.post(h.PID, protocol.ResizeMessage(cols, rows))
	}
}

func (s *Session) keystroke(keys string) {
	if h, ok := s.fg.Target(); ok {
		s.post(h.PID, protocol.KeystrokeMessage(s.cfg.Prefix, keys))
	}
}

// startRoot launches the root unit sized to the first known terminal size.
func (s *Session) startRoot() {
	args := s.cfg.RootArgs
	if len(args) == 0 {
		args = []string{s.cfg.Prefix}
	}
	pid := s.launch(launchRequest{
		command:      s.cfg.Prefix,
		executable:   args[0],
		args:         args,
		cwd:          "/",
		manifestName: manifest.DefaultName(args[0]),
	})
	if pid == 0 {
		s.finished = true
		status := protocol.CrashStatus
		s.publish(events.SessionFinished, events.UnitEvent{Command: s.cfg.Prefix, Status: &status, Error: "launch failed"})
		if s.cfg.OnExit != nil {
			s.after = append(s.after, func() { s.cfg.OnExit(protocol.CrashStatus) })
		}
		return
	}
	s.setForeground(pid)
}
