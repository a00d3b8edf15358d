package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/unitd/internal/api"
	"github.com/mattjoyce/unitd/internal/events"
)

type eventMsg events.Event

type healthMsg api.HealthzResponse

type processesMsg api.ProcessesResponse

type tickMsg time.Time

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

type sseDisconnectedMsg struct{}

func subscribeToEvents(c *api.Client, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		_ = c.Stream(context.Background(), ch)
		return sseDisconnectedMsg{}
	}
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func fetchState(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		procs, err := c.Processes(ctx)
		if err != nil {
			return errMsg{err}
		}
		return processesMsg(procs)
	}
}

func fetchHealth(c *api.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		h, err := c.Health(ctx)
		if err != nil {
			return errMsg{err}
		}
		return healthMsg(h)
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}
