package dispatch

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/host"
	"github.com/mattjoyce/unitd/internal/manifest"
	"github.com/mattjoyce/unitd/internal/output"
	"github.com/mattjoyce/unitd/internal/process"
	"github.com/mattjoyce/unitd/internal/protocol"
)

// handleMessage routes one message sent by unit h.
func (s *Session) handleMessage(h *process.Handle, raw json.RawMessage) {
	msg := protocol.Classify(raw, s.cfg.Prefix)
	s.metrics.Message(msg.Kind.String())

	switch msg.Kind {
	case protocol.KindSpawn:
		s.handleSpawn(h, msg.Spawn)
	case protocol.KindWait:
		s.handleWait(h, msg.Wait)
	case protocol.KindSetForeground:
		s.handleSetForeground(h, msg.SetFG)
	case protocol.KindOutput:
		s.mux.Write(h.PID, msg.Text)
	case protocol.KindExit:
		s.exit(h, msg.ExitCode, false)
	default:
		s.logger.Warn("unexpected message", "pid", h.PID, "message", truncate(string(raw), 256))
		s.publish(events.MessageDropped, events.UnitEvent{PID: h.PID, Kind: msg.Kind.String()})
	}
}

func (s *Session) handleSpawn(parent *process.Handle, req *protocol.SpawnRequest) {
	logger := s.logger.With("parent", parent.PID, "request_id", req.ID)
	if req.ID != "" {
		s.pending.add(parent.PID, req.ID)
	}
	reject := func(reason string) {
		logger.Info("spawn rejected", "executable", req.Executable(), "reason", reason)
		if req.ID != "" {
			s.reply(parent.PID, req.ID, protocol.ErrnoReply(protocol.ENOENT))
		}
	}

	exe := req.Executable()
	if exe == "" {
		reject("empty argv")
		return
	}

	lr := launchRequest{
		parent:  parent.PID,
		command: exe,
		args:    req.Args,
		envs:    req.Envs,
		cwd:     req.Cwd,
		reqID:   req.ID,
	}
	if req.HasManifest() {
		rewritten, err := s.cfg.Rewriter.Rewrite(req.NMF)
		if err != nil {
			reject(err.Error())
			return
		}
		lr.manifest = rewritten
		lr.digest = manifest.Digest(req.NMF)
	} else {
		if s.cfg.Allowlist != nil && !slices.Contains(s.cfg.Allowlist, exe) {
			reject("not in allowlist")
			return
		}
		lr.manifestName = manifest.DefaultName(exe)
	}

	logger.Debug("spawn", "executable", exe, "args", req.Args)
	s.launch(lr)
}

func (s *Session) handleWait(h *process.Handle, req *protocol.WaitRequest) {
	s.pending.add(h.PID, req.ID)
	res := s.table.Wait(process.Waiter{
		Requester: h.PID,
		ReqID:     req.ID,
		Options:   req.Options,
	}, req.PID)
	s.metrics.Wait(res.Outcome.String())
	s.logger.Debug("wait", "pid", h.PID, "target", req.PID, "options", req.Options, "outcome", res.Outcome.String())

	if res.Outcome == process.WaitQueued {
		return
	}
	s.reply(h.PID, req.ID, res.Reply)
	if res.Outcome == process.WaitReaped {
		s.reaped(res.ReapedPID, h.PID)
	}
}

// handleSetForeground hands the terminal to a live unit in the requester's
// subtree.
func (s *Session) handleSetForeground(h *process.Handle, req *protocol.SetForegroundRequest) {
	s.pending.add(h.PID, req.ID)
	target, ok := s.table.Handle(req.PID)
	if !ok || target.Terminated() || !s.fg.InSubtree(h.PID, req.PID) {
		s.reply(h.PID, req.ID, protocol.ErrnoReply(protocol.ESRCH))
		return
	}
	s.setForeground(req.PID)
	s.reply(h.PID, req.ID, protocol.PIDReply(req.PID))
}

func (s *Session) setForeground(pid int) {
	if s.fg.Current() == pid {
		return
	}
	s.fg.Set(pid)
	s.logger.Debug("foreground changed", "pid", pid)
	s.publish(events.ForegroundChanged, events.UnitEvent{PID: pid, Foreground: pid})
}

// reaped records that pid's status was collected by waiter.
func (s *Session) reaped(pid, waiter int) {
	delete(s.digests, pid)
	s.publish(events.UnitReaped, events.UnitEvent{PID: pid, Parent: waiter})
	s.updateGauges()
}

// expireWaiters answers waits queued longer than the configured timeout.
func (s *Session) expireWaiters(now time.Time) {
	ds := s.table.ExpireWaiters(now.Add(-s.cfg.WaitTimeout))
	for range ds {
		s.metrics.Wait("timeout")
	}
	if len(ds) > 0 {
		s.logger.Debug("expired queued waits", "count", len(ds))
	}
	s.deliver(ds)
}

type launchRequest struct {
	parent       int
	command      string
	executable   string
	args         []string
	envs         []string
	cwd          string
	reqID        protocol.RequestID
	manifest     []byte
	manifestName string
	digest       string
}

// launch starts a unit and records it Running. It returns the new pid, or
// 0 if the host could not start it.
func (s *Session) launch(lr launchRequest) int {
	if lr.executable == "" {
		lr.executable = lr.command
	}
	pid := s.table.Allocate()
	params := host.BuildParams(lr.envs, lr.cwd, host.Terminal{
		Prefix:  s.cfg.Prefix,
		Cols:    s.cols,
		Rows:    s.rows,
		AltHTTP: s.cfg.AltHTTP,
	})
	for k, v := range host.ArgParams(lr.args) {
		params[k] = v
	}

	spec := host.LaunchSpec{
		PID:          pid,
		Command:      lr.command,
		Executable:   lr.executable,
		Args:         lr.args,
		Cwd:          lr.cwd,
		Params:       params,
		Manifest:     lr.manifest,
		ManifestName: lr.manifestName,
	}
	unit, err := s.host.Launch(s.ctx, spec, s)
	if err != nil {
		if errors.Is(err, host.ErrUnsupported) {
			s.print("Host does not support " + s.host.Name() + "\n")
		} else {
			s.print(lr.command + ": " + err.Error() + "\n")
		}
		s.logger.Warn("launch failed", "pid", pid, "command", lr.command, "error", err)
		if lr.reqID != "" {
			s.reply(lr.parent, lr.reqID, protocol.ErrnoReply(protocol.ENOENT))
		}
		return 0
	}

	h := &process.Handle{
		PID:        pid,
		Parent:     lr.parent,
		Command:    lr.command,
		SpawnReqID: lr.reqID,
		State:      process.StateLoading,
		SpawnedAt:  time.Now().UTC(),
	}
	s.table.RecordRunning(h)
	s.units[pid] = unit
	if lr.digest != "" {
		s.digests[pid] = lr.digest
	}

	if !s.launched {
		s.launched = true
		s.print(output.ANSICyan + "Loading " + s.cfg.Prefix + " module.\n")
	}

	s.metrics.UnitSpawned()
	s.updateGauges()
	s.logger.Info("unit spawned", "pid", pid, "parent", lr.parent, "command", lr.command)
	s.publish(events.UnitSpawned, events.UnitEvent{
		PID:     pid,
		Parent:  lr.parent,
		Command: lr.command,
		Digest:  lr.digest,
	})
	return pid
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
