package api

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/journal"
)

func TestClientRoundTrip(t *testing.T) {
	hist := &fakeHistory{records: []journal.Record{{SessionID: "sess-1", PID: 1, Command: "bash", State: journal.StateRunning}}}
	hub := events.NewHub(8)
	srv := httptest.NewServer(newServer(Deps{Session: newSession(), History: hist, Events: hub}).Handler())
	defer srv.Close()

	ctx := context.Background()
	c := &Client{BaseURL: srv.URL + "/", Token: "admin"}

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", h.SessionID)

	p, err := c.Processes(ctx)
	require.NoError(t, err)
	assert.Len(t, p.Processes, 3)

	records, err := c.History(ctx, journal.Filter{SessionID: "sess-1", Limit: 3})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, journal.Filter{SessionID: "sess-1", Limit: 3}, hist.got)

	hub.Publish(events.UnitSpawned, events.UnitEvent{PID: 9})
	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	ch := make(chan events.Event, 1)
	go func() { _ = c.Stream(streamCtx, ch) }()
	select {
	case ev := <-ch:
		assert.Equal(t, events.UnitSpawned, ev.Type)
	case <-streamCtx.Done():
		t.Fatal("no event streamed")
	}
}

func TestClientReportsAPIError(t *testing.T) {
	srv := httptest.NewServer(newServer(Deps{Session: newSession()}).Handler())
	defer srv.Close()

	c := &Client{BaseURL: srv.URL, Token: "nope"}
	_, err := c.Processes(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API key")
}

func TestReadSSE(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 7",
		"event: unit.spawned",
		`data: {"pid":2}`,
		"",
		"id: 8",
		"event: unit.loaded",
		`data: {"pid":2}`,
		"",
		"",
	}, "\n")

	ch := make(chan events.Event, 4)
	require.NoError(t, ReadSSE(context.Background(), strings.NewReader(stream), ch))
	close(ch)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, events.UnitSpawned, got[0].Type)
	assert.JSONEq(t, `{"pid":2}`, string(got[1].Data))
}

func TestReadSSEDropsUnterminatedEvent(t *testing.T) {
	stream := "id: 1\nevent: unit.spawned\ndata: {\"pid\":1}\n\nid: 2\nevent: unit.loaded\ndata: {\"pid\":1}\n"

	ch := make(chan events.Event, 4)
	require.NoError(t, ReadSSE(context.Background(), strings.NewReader(stream), ch))
	close(ch)

	var got []events.Event
	for ev := range ch {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
}
