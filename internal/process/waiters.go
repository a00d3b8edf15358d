package process

import (
	"time"

	"github.com/mattjoyce/unitd/internal/protocol"
)

// Waiter is a suspended wait request.
type Waiter struct {
	// Requester is the pid of the unit that called wait.
	Requester int
	ReqID     protocol.RequestID
	Options   int
	QueuedAt  time.Time
}

// Delivery is a reply the caller must post to Requester.
type Delivery struct {
	To    int
	ReqID protocol.RequestID
	Reply protocol.Reply
}

func (w Waiter) deliver(r protocol.Reply) Delivery {
	return Delivery{To: w.Requester, ReqID: w.ReqID, Reply: r}
}

// Registry maps a wait target (a pid or protocol.AnyChild) to its FIFO of
// waiters. A key exists only while its queue is non-empty.
type Registry struct {
	queues map[int][]Waiter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{queues: make(map[int][]Waiter)}
}

// Enqueue appends w under key.
func (r *Registry) Enqueue(key int, w Waiter) {
	r.queues[key] = append(r.queues[key], w)
}

// PopOldest removes and returns the oldest waiter under key.
func (r *Registry) PopOldest(key int) (Waiter, bool) {
	q := r.queues[key]
	if len(q) == 0 {
		return Waiter{}, false
	}
	w := q[0]
	if len(q) == 1 {
		delete(r.queues, key)
	} else {
		r.queues[key] = q[1:]
	}
	return w, true
}

// Drain removes and returns every waiter under key.
func (r *Registry) Drain(key int) []Waiter {
	q := r.queues[key]
	delete(r.queues, key)
	return q
}

// Len returns the number of waiters queued under key.
func (r *Registry) Len(key int) int {
	return len(r.queues[key])
}

// Keys returns the number of keys with queued waiters.
func (r *Registry) Keys() int {
	return len(r.queues)
}

// Total returns the number of queued waiters across all keys.
func (r *Registry) Total() int {
	n := 0
	for _, q := range r.queues {
		n += len(q)
	}
	return n
}

// Expire removes waiters queued before cutoff, preserving the order of the
// rest, and returns the removed ones.
func (r *Registry) Expire(cutoff time.Time) []Waiter {
	var expired []Waiter
	for key, q := range r.queues {
		kept := q[:0]
		for _, w := range q {
			if w.QueuedAt.Before(cutoff) {
				expired = append(expired, w)
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) == 0 {
			delete(r.queues, key)
		} else {
			r.queues[key] = kept
		}
	}
	return expired
}

// RemoveRequester drops every waiter queued by pid and returns how many
// were removed.
func (r *Registry) RemoveRequester(pid int) int {
	removed := 0
	for key, q := range r.queues {
		kept := q[:0]
		for _, w := range q {
			if w.Requester == pid {
				removed++
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) == 0 {
			delete(r.queues, key)
		} else {
			r.queues[key] = kept
		}
	}
	return removed
}
