package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/unitd/internal/events"
)

func intPtr(v int) *int { return &v }

func TestRecorderApply(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := openStore(t)
	hub := events.NewHub(16)
	r := NewRecorder(s, hub)

	require.NoError(t, s.BeginSession(ctx, "sess", "vim", time.Now()))

	hub.Publish(events.UnitSpawned, events.UnitEvent{SessionID: "sess", PID: 1, Command: "vim", Digest: "blake3:00"})
	hub.Publish(events.UnitLoaded, events.UnitEvent{SessionID: "sess", PID: 1})
	hub.Publish(events.ForegroundChanged, events.UnitEvent{SessionID: "sess", PID: 1, Foreground: 1})
	hub.Publish(events.UnitExited, events.UnitEvent{SessionID: "sess", PID: 1, Status: intPtr(-1), Crashed: true})
	hub.Publish(events.SessionFinished, events.UnitEvent{SessionID: "sess", PID: 1, Status: intPtr(-1)})

	for _, ev := range hub.SnapshotSince(0) {
		require.NoError(t, r.Apply(ctx, ev), ev.Type)
	}

	rec, err := s.Get(ctx, "sess", 1)
	require.NoError(t, err)
	assert.Equal(t, StateExited, rec.State)
	assert.True(t, rec.Crashed)
	require.NotNil(t, rec.LoadedAt)

	sessions, err := s.Sessions(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.NotNil(t, sessions[0].Status)
	assert.Equal(t, -1, *sessions[0].Status)
}

func TestRecorderIgnoresUnrecordedUnits(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	hub := events.NewHub(4)
	r := NewRecorder(s, hub)

	hub.Publish(events.UnitReaped, events.UnitEvent{SessionID: "sess", PID: 7})
	evs := hub.SnapshotSince(0)
	require.Len(t, evs, 1)
	assert.NoError(t, r.Apply(context.Background(), evs[0]))
}

func TestRecorderRun(t *testing.T) {
	t.Parallel()
	s := openStore(t)
	hub := events.NewHub(4)
	r := NewRecorder(s, hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		hub.Publish(events.UnitSpawned, events.UnitEvent{SessionID: "sess", PID: 3, Parent: 1, Command: "ls"})
		_, err := s.Get(context.Background(), "sess", 3)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("recorder did not stop")
	}
}
