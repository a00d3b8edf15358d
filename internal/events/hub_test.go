package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	h := NewHub(8)
	ch, cancel := h.Subscribe()
	defer cancel()

	status := 3
	h.Publish(UnitExited, UnitEvent{SessionID: "s", PID: 2, Status: &status})

	ev := <-ch
	assert.Equal(t, int64(1), ev.ID)
	assert.Equal(t, UnitExited, ev.Type)

	var payload UnitEvent
	require.NoError(t, ev.Decode(&payload))
	assert.Equal(t, 2, payload.PID)
	require.NotNil(t, payload.Status)
	assert.Equal(t, 3, *payload.Status)
}

func TestPublishNilPayload(t *testing.T) {
	h := NewHub(2)
	h.Publish(SessionFinished, nil)
	snap := h.SnapshotSince(0)
	require.Len(t, snap, 1)
	assert.JSONEq(t, `{}`, string(snap[0].Data))
}

func TestRingBufferOverwritesOldest(t *testing.T) {
	h := NewHub(3)
	for i := 0; i < 5; i++ {
		h.Publish(UnitSpawned, UnitEvent{PID: i + 1})
	}

	snap := h.SnapshotSince(0)
	require.Len(t, snap, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{snap[0].ID, snap[1].ID, snap[2].ID})

	since := h.SnapshotSince(4)
	require.Len(t, since, 1)
	assert.Equal(t, int64(5), since[0].ID)
}

func TestSlowSubscriberDrops(t *testing.T) {
	h := NewHub(10)
	ch, cancel := h.SubscribeBuffered(1)

	h.Publish(UnitSpawned, nil)
	h.Publish(UnitLoaded, nil)
	assert.Equal(t, int64(1), h.Dropped())
	assert.Equal(t, UnitSpawned, (<-ch).Type)

	cancel()
	_, ok := <-ch
	assert.False(t, ok, "cancel closes the channel")
	cancel()
}
