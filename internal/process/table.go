package process

import (
	"errors"
	"sort"
	"time"

	"github.com/mattjoyce/unitd/internal/protocol"
)

// ErrNoSuchChild mirrors ECHILD: the pid was never spawned or was already reaped.
var ErrNoSuchChild = errors.New("no such child")

// Entry is a read-only view of a process table slot.
type Entry struct {
	PID    int
	Exited bool
	Status int
	// Handle is a copy of the unit descriptor, nil if the arena dropped it.
	Handle *Handle
}

type slot struct {
	exited bool
	status int
}

// Table owns pid allocation, the pid -> Running|Exited mapping, the unit
// handle arena and the waiter registry.
type Table struct {
	lastPID int
	slots   map[int]*slot
	handles map[int]*Handle
	waiters *Registry
	now     func() time.Time
}

// NewTable returns an empty table. The first allocated pid is 1.
func NewTable() *Table {
	return &Table{
		slots:   make(map[int]*slot),
		handles: make(map[int]*Handle),
		waiters: NewRegistry(),
		now:     time.Now,
	}
}

// Allocate returns the next pid. Pids strictly increase and are never reused.
func (t *Table) Allocate() int {
	t.lastPID++
	return t.lastPID
}

// RecordRunning inserts a Running entry for h and adds h to the arena.
func (t *Table) RecordRunning(h *Handle) {
	t.slots[h.PID] = &slot{}
	t.handles[h.PID] = h
}

// Handle returns the arena handle for pid.
func (t *Table) Handle(pid int) (*Handle, bool) {
	h, ok := t.handles[pid]
	return h, ok
}

// Query returns the table entry for pid.
func (t *Table) Query(pid int) (Entry, bool) {
	s, ok := t.slots[pid]
	if !ok {
		return Entry{}, false
	}
	return t.entry(pid, s), true
}

func (t *Table) entry(pid int, s *slot) Entry {
	e := Entry{PID: pid, Exited: s.exited, Status: s.status}
	if h, ok := t.handles[pid]; ok {
		cp := *h
		e.Handle = &cp
	}
	return e
}

// Snapshot returns all entries ordered by pid.
func (t *Table) Snapshot() []Entry {
	pids := make([]int, 0, len(t.slots))
	for pid := range t.slots {
		pids = append(pids, pid)
	}
	sort.Ints(pids)
	out := make([]Entry, 0, len(pids))
	for _, pid := range pids {
		out = append(out, t.entry(pid, t.slots[pid]))
	}
	return out
}

// Counts returns the number of running and zombie entries.
func (t *Table) Counts() (running, zombies int) {
	for _, s := range t.slots {
		if s.exited {
			zombies++
		} else {
			running++
		}
	}
	return running, zombies
}

// Waiters exposes the registry for inspection.
func (t *Table) Waiters() *Registry {
	return t.waiters
}

// RecordExit processes an exit notification for pid. The oldest waiter for
// pid is preferred, then the oldest wildcard waiter; either way the entry
// is reaped at once and any other waiters on pid learn ECHILD. With no
// waiter the entry is kept as a zombie. reaped reports which happened.
// Unknown pids return ErrNoSuchChild.
func (t *Table) RecordExit(pid, status int) (deliveries []Delivery, reaped bool, err error) {
	s, ok := t.slots[pid]
	if !ok || s.exited {
		return nil, false, ErrNoSuchChild
	}
	if h, ok := t.handles[pid]; ok {
		h.State = StateExited
	}

	w, ok := t.waiters.PopOldest(pid)
	if !ok {
		w, ok = t.waiters.PopOldest(protocol.AnyChild)
	}
	if !ok {
		s.exited = true
		s.status = status
		return nil, false, nil
	}

	deliveries = append(deliveries, w.deliver(protocol.StatusReply(pid, status)))
	for _, rest := range t.waiters.Drain(pid) {
		deliveries = append(deliveries, rest.deliver(protocol.ErrnoReply(protocol.ECHILD)))
	}
	t.reap(pid)
	return deliveries, true, nil
}

// Remove drops pid without recording a status, used when a unit failed to
// load. Waiters queued on pid learn ECHILD.
func (t *Table) Remove(pid int) []Delivery {
	if _, ok := t.slots[pid]; !ok {
		return nil
	}
	if h, ok := t.handles[pid]; ok {
		h.State = StateExited
	}
	var deliveries []Delivery
	for _, w := range t.waiters.Drain(pid) {
		deliveries = append(deliveries, w.deliver(protocol.ErrnoReply(protocol.ECHILD)))
	}
	t.reap(pid)
	return deliveries
}

// WaitOutcome classifies how a wait call was answered.
type WaitOutcome int

const (
	WaitReaped WaitOutcome = iota
	WaitNoChild
	WaitWouldBlock
	WaitQueued
)

func (o WaitOutcome) String() string {
	switch o {
	case WaitReaped:
		return "reaped"
	case WaitNoChild:
		return "no_child"
	case WaitWouldBlock:
		return "would_block"
	case WaitQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// WaitResult is the synchronous answer to Wait. Reply is meaningful unless
// Outcome is WaitQueued.
type WaitResult struct {
	Outcome WaitOutcome
	Reply   protocol.Reply
	// ReapedPID is the pid collected when Outcome is WaitReaped.
	ReapedPID int
}

// Wait implements waitpid semantics for target pid. Any negative pid is
// treated as the wildcard. Queued waiters are answered later by RecordExit.
func (t *Table) Wait(w Waiter, pid int) WaitResult {
	if pid < 0 {
		if zpid, ok := t.oldestZombie(); ok {
			return t.collect(zpid)
		}
	} else {
		s, ok := t.slots[pid]
		if !ok {
			return WaitResult{Outcome: WaitNoChild, Reply: protocol.ErrnoReply(protocol.ECHILD)}
		}
		if s.exited {
			return t.collect(pid)
		}
	}

	if w.Options&protocol.WNOHANG != 0 {
		return WaitResult{Outcome: WaitWouldBlock, Reply: protocol.StatusReply(0, 0)}
	}

	key := pid
	if key < 0 {
		key = protocol.AnyChild
	}
	if w.QueuedAt.IsZero() {
		w.QueuedAt = t.now()
	}
	t.waiters.Enqueue(key, w)
	return WaitResult{Outcome: WaitQueued}
}

// ExpireWaiters answers waiters queued before cutoff with EAGAIN.
func (t *Table) ExpireWaiters(cutoff time.Time) []Delivery {
	var deliveries []Delivery
	for _, w := range t.waiters.Expire(cutoff) {
		deliveries = append(deliveries, w.deliver(protocol.ErrnoReply(protocol.EAGAIN)))
	}
	return deliveries
}

// oldestZombie returns the smallest exited pid.
func (t *Table) oldestZombie() (int, bool) {
	best, found := 0, false
	for pid, s := range t.slots {
		if s.exited && (!found || pid < best) {
			best, found = pid, true
		}
	}
	return best, found
}

func (t *Table) collect(pid int) WaitResult {
	s := t.slots[pid]
	res := WaitResult{
		Outcome:   WaitReaped,
		Reply:     protocol.StatusReply(pid, s.status),
		ReapedPID: pid,
	}
	t.reap(pid)
	return res
}

// reap forgets pid and hands its children to its parent so parent walks
// never hit a missing link.
func (t *Table) reap(pid int) {
	delete(t.slots, pid)
	h, ok := t.handles[pid]
	if !ok {
		return
	}
	delete(t.handles, pid)
	for _, child := range t.handles {
		if child.Parent == pid {
			child.Parent = h.Parent
		}
	}
}
