// Package tui is a live terminal monitor for a running unitd session.
package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/unitd/internal/api"
	"github.com/mattjoyce/unitd/internal/events"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusQueued  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

const (
	refreshInterval = 2 * time.Second
	eventLogSize    = 50
)

type Model struct {
	client *api.Client

	width  int
	height int

	procs     api.ProcessesResponse
	health    api.HealthzResponse
	eventLog  []events.Event
	hubEvents chan events.Event
	lastErr   error

	unitTable table.Model
}

func NewMonitor(baseURL, token string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "PID", Width: 6},
			{Title: "PPID", Width: 6},
			{Title: "Command", Width: 24},
			{Title: "State", Width: 10},
			{Title: "Status", Width: 8},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		client:    &api.Client{BaseURL: baseURL, Token: token},
		hubEvents: make(chan events.Event, 100),
		unitTable: t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.client, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		fetchState(m.client),
		fetchHealth(m.client),
		tick(refreshInterval),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, tea.Batch(fetchState(m.client), fetchHealth(m.client))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.unitTable.SetWidth(max(m.width-6, 20))
		m.unitTable.SetHeight(max(m.height/2-4, 3))

	case eventMsg:
		m.pushEvent(events.Event(msg))
		// Lifecycle changes invalidate the table immediately.
		return m, tea.Batch(receiveNextEvent(m.hubEvents), fetchState(m.client))

	case processesMsg:
		m.procs = api.ProcessesResponse(msg)
		m.lastErr = nil
		m.unitTable.SetRows(treeRows(m.procs))
		return m, nil

	case healthMsg:
		m.health = api.HealthzResponse(msg)
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchState(m.client), fetchHealth(m.client), tick(refreshInterval))

	case sseDisconnectedMsg:
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return subscribeToEvents(m.client, m.hubEvents)()
		})

	case errMsg:
		m.lastErr = msg.err
		return m, nil
	}

	m.unitTable, cmd = m.unitTable.Update(msg)
	return m, cmd
}

func (m *Model) pushEvent(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > eventLogSize {
		m.eventLog = m.eventLog[:eventLogSize]
	}
}

// treeRows flattens the process table depth-first so children sit under
// their parent. Zombies without a handle are listed at the root level.
func treeRows(p api.ProcessesResponse) []table.Row {
	byPID := make(map[int]api.Process, len(p.Processes))
	children := make(map[int][]int)
	for _, proc := range p.Processes {
		byPID[proc.PID] = proc
	}
	var roots []int
	for _, proc := range p.Processes {
		if _, ok := byPID[proc.Parent]; ok && proc.Parent != 0 {
			children[proc.Parent] = append(children[proc.Parent], proc.PID)
		} else {
			roots = append(roots, proc.PID)
		}
	}
	sort.Ints(roots)

	var rows []table.Row
	var walk func(pid, depth int)
	walk = func(pid, depth int) {
		rows = append(rows, procRow(byPID[pid], depth))
		kids := children[pid]
		sort.Ints(kids)
		for _, k := range kids {
			walk(k, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return rows
}

func procRow(p api.Process, depth int) table.Row {
	sym := statusQueued.Render("○")
	switch {
	case p.Foreground:
		sym = statusOK.Render("▶")
	case p.State == "zombie":
		sym = statusFailed.Render("z")
	case p.State == "running":
		sym = statusRunning.Render("◉")
	}

	status := "-"
	if p.Status != nil {
		status = strconv.Itoa(*p.Status)
	}
	command := p.Command
	if command == "" {
		command = "?"
	}

	return table.Row{
		sym,
		strconv.Itoa(p.PID),
		strconv.Itoa(p.Parent),
		strings.Repeat("  ", depth) + command,
		p.State,
		status,
	}
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	units := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Units"),
			m.unitTable.View(),
		),
	)

	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.renderEvents(),
		),
	)

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [r] Refresh • [↑/↓] Scroll")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			m.renderHeader(),
			units,
			eventsView,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	switch {
	case m.lastErr != nil:
		status = statusFailed.Render("UNREACHABLE")
	case m.health.Status == "finished":
		status = statusQueued.Render("FINISHED")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second
	items := []string{
		fmt.Sprintf("Session: %s", shortID(m.health.SessionID)),
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime.String()),
		fmt.Sprintf("Units: %d (%d zombie)", m.health.Running+m.health.Zombies, m.health.Zombies),
		fmt.Sprintf("Fg: %d  Waits: %d", m.health.Foreground, m.health.PendingWaits),
	}

	col := lipgloss.NewStyle().Width((m.width - 4) / len(items))
	cells := make([]string, len(items))
	for i, it := range items {
		cells[i] = col.Render(it)
	}
	return borderStyle.Width(m.width - 4).Render(lipgloss.JoinHorizontal(lipgloss.Top, cells...))
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		ts := e.At.Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-18s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
