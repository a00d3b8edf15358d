package process

// Router tracks the unit that owns interactive input. Zero means no unit
// has been launched yet.
type Router struct {
	table *Table
	pid   int
}

// NewRouter returns a router resolving parent links through t.
func NewRouter(t *Table) *Router {
	return &Router{table: t}
}

// Current returns the foreground pid, or 0.
func (r *Router) Current() int {
	return r.pid
}

// Set installs pid as the foreground owner.
func (r *Router) Set(pid int) {
	r.pid = pid
}

// Target returns the live foreground handle, if any.
func (r *Router) Target() (*Handle, bool) {
	if r.pid == 0 {
		return nil, false
	}
	h, ok := r.table.Handle(r.pid)
	if !ok || h.Terminated() {
		return nil, false
	}
	return h, true
}

// Retarget is called after exited terminates. If exited owned the
// foreground, ownership moves to its nearest live ancestor, skipping
// terminated ones. It returns the new owner and whether it changed.
func (r *Router) Retarget(exited *Handle) (int, bool) {
	if r.pid != exited.PID {
		return r.pid, false
	}
	next := r.LiveAncestor(exited.Parent)
	r.pid = next
	return next, true
}

// LiveAncestor walks up from pid (inclusive) to the first live unit and
// returns its pid, or 0 if the walk runs off the root.
func (r *Router) LiveAncestor(pid int) int {
	for pid != 0 {
		h, ok := r.table.Handle(pid)
		if !ok {
			return 0
		}
		if !h.Terminated() {
			return pid
		}
		pid = h.Parent
	}
	return 0
}

// InSubtree reports whether pid is ancestor itself or one of its descendants.
func (r *Router) InSubtree(ancestor, pid int) bool {
	for pid != 0 {
		if pid == ancestor {
			return true
		}
		h, ok := r.table.Handle(pid)
		if !ok {
			return false
		}
		pid = h.Parent
	}
	return false
}
