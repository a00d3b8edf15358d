package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/log"
)

// subscriberBuffer is sized so that bursts of spawns do not outrun the
// database writer.
const subscriberBuffer = 1024

// Recorder writes hub events into the Store.
type Recorder struct {
	store  *Store
	hub    *events.Hub
	logger *slog.Logger
}

func NewRecorder(store *Store, hub *events.Hub) *Recorder {
	return &Recorder{
		store:  store,
		hub:    hub,
		logger: log.WithComponent("journal"),
	}
}

// Run records events until ctx is cancelled, then records whatever is
// already buffered. It is a blocking call.
func (r *Recorder) Run(ctx context.Context) error {
	ch, cancel := r.hub.SubscribeBuffered(subscriberBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			r.drain(ch)
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.Apply(ctx, ev); err != nil {
				r.logger.Error("failed to record event", "event_id", ev.ID, "type", ev.Type, "error", err)
			}
		}
	}
}

// Apply records a single event. Events that carry no history are ignored.
func (r *Recorder) Apply(ctx context.Context, ev events.Event) error {
	var u events.UnitEvent
	if err := ev.Decode(&u); err != nil {
		return fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}

	var err error
	switch ev.Type {
	case events.UnitSpawned:
		err = r.store.Spawned(ctx, u.SessionID, u.PID, u.Parent, u.Command, u.Digest, ev.At)
	case events.UnitLoaded:
		err = r.store.Loaded(ctx, u.SessionID, u.PID, ev.At)
	case events.UnitLoadFailed:
		err = r.store.LoadFailed(ctx, u.SessionID, u.PID, u.Error, ev.At)
	case events.UnitExited:
		status := 0
		if u.Status != nil {
			status = *u.Status
		}
		err = r.store.Exited(ctx, u.SessionID, u.PID, status, u.Crashed, ev.At)
	case events.UnitReaped:
		err = r.store.Reaped(ctx, u.SessionID, u.PID, ev.At)
	case events.SessionFinished:
		status := 0
		if u.Status != nil {
			status = *u.Status
		}
		err = r.store.FinishSession(ctx, u.SessionID, status, ev.At)
	default:
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		r.logger.Debug("event for unrecorded unit", "type", ev.Type, "pid", u.PID)
		return nil
	}
	return err
}

func (r *Recorder) drain(ch <-chan events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Apply(ctx, ev); err != nil {
				r.logger.Error("failed to record event", "event_id", ev.ID, "type", ev.Type, "error", err)
			}
		default:
			return
		}
	}
}
