package dispatch

import (
	"github.com/mattjoyce/unitd/internal/process"
	"github.com/mattjoyce/unitd/internal/protocol"
)

type requestKey struct {
	pid int
	id  protocol.RequestID
}

// ledger counts outstanding requests per (unit, request id) so that each
// request is answered exactly once.
type ledger struct {
	open map[requestKey]int
}

func newLedger() *ledger {
	return &ledger{open: make(map[requestKey]int)}
}

func (l *ledger) add(pid int, id protocol.RequestID) {
	l.open[requestKey{pid, id}]++
}

// settle consumes one outstanding request, reporting false if none was open.
func (l *ledger) settle(pid int, id protocol.RequestID) bool {
	k := requestKey{pid, id}
	n := l.open[k]
	if n == 0 {
		return false
	}
	if n == 1 {
		delete(l.open, k)
	} else {
		l.open[k] = n - 1
	}
	return true
}

// forget drops everything outstanding for pid.
func (l *ledger) forget(pid int) {
	for k := range l.open {
		if k.pid == pid {
			delete(l.open, k)
		}
	}
}

func (l *ledger) len() int {
	n := 0
	for _, c := range l.open {
		n += c
	}
	return n
}

// reply answers request id from unit to. Replies to a released unit are
// dropped; a second answer to a live unit's request is an error.
func (s *Session) reply(to int, id protocol.RequestID, r protocol.Reply) {
	u, ok := s.units[to]
	if !ok {
		s.logger.Debug("requester is gone, dropping reply", "to", to, "request_id", id)
		return
	}
	if !s.pending.settle(to, id) {
		s.logger.Error("dropping reply to a request that is not outstanding", "to", to, "request_id", id, "reply_pid", r.PID)
		return
	}
	if err := u.Post(protocol.Envelope(id, r)); err != nil {
		s.logger.Warn("failed to post reply", "to", to, "request_id", id, "error", err)
	}
}

func (s *Session) deliver(ds []process.Delivery) {
	for _, d := range ds {
		s.reply(d.To, d.ReqID, d.Reply)
	}
}

// post sends an unsolicited message to a unit.
func (s *Session) post(pid int, msg any) {
	u, ok := s.units[pid]
	if !ok {
		return
	}
	if err := u.Post(msg); err != nil {
		s.logger.Debug("failed to post to unit", "pid", pid, "error", err)
	}
}
