package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/olekukonko/tablewriter"

	"github.com/mattjoyce/unitd/internal/api"
	"github.com/mattjoyce/unitd/internal/inspect"
	"github.com/mattjoyce/unitd/internal/journal"
	"github.com/mattjoyce/unitd/internal/tui"
)

const queryTimeout = 10 * time.Second

// clientFlags are the flags shared by commands that talk to a serving
// daemon.
type clientFlags struct {
	configPath *string
	apiURL     *string
	token      *string
}

func addClientFlags(fs *flag.FlagSet) clientFlags {
	return clientFlags{
		configPath: fs.String("config", "", "Path to configuration file or directory"),
		apiURL:     fs.String("api", "", "API base URL (default: from api.listen)"),
		token:      fs.String("token", "", "Bearer token (default: $UNITD_TOKEN or api.auth.api_key)"),
	}
}

// client resolves the API address and token. Explicit flags win over the
// environment, which wins over the config file.
func (f clientFlags) client() (*api.Client, error) {
	baseURL, token := *f.apiURL, *f.token
	if token == "" {
		token = os.Getenv("UNITD_TOKEN")
	}
	if baseURL == "" || token == "" {
		cfg, err := loadConfig(*f.configPath, true)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if baseURL == "" {
			baseURL = "http://" + cfg.API.Listen
		}
		if token == "" {
			token = cfg.API.Auth.APIKey
		}
	}
	return &api.Client{BaseURL: baseURL, Token: token}, nil
}

func runPs(args []string) int {
	fs := flag.NewFlagSet("ps", flag.ContinueOnError)
	cf := addClientFlags(fs)
	jsonOut := fs.Bool("json", false, "Output JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	client, err := cf.client()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()

	procs, err := client.Processes(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query processes: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(procs)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("PID", "PPID", "FG", "State", "Status", "Command")
	for _, p := range procs.Processes {
		fg := ""
		if p.Foreground {
			fg = "*"
		}
		table.Append(strconv.Itoa(p.PID), strconv.Itoa(p.Parent), fg, p.State, statusText(p.Status), p.Command)
	}
	table.Render()
	if procs.Finished {
		fmt.Println("session finished")
	}
	return 0
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	sessionID := fs.String("session", "", "Only show units of this session")
	limit := fs.Int("limit", 50, "Maximum rows")
	jsonOut := fs.Bool("json", false, "Output JSON")
	sessions := fs.Bool("sessions", false, "List recorded sessions instead of units")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	store, closeStore, err := openJournal(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer closeStore()

	if *sessions {
		list, err := store.Sessions(ctx, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list sessions: %v\n", err)
			return 1
		}
		if *jsonOut {
			return printJSON(list)
		}
		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Session", "Prefix", "Started", "Finished", "Status")
		for _, s := range list {
			table.Append(s.ID, s.Prefix, s.StartedAt.Local().Format(time.DateTime), timeText(s.FinishedAt), statusText(s.Status))
		}
		table.Render()
		return 0
	}

	records, err := store.List(ctx, journal.Filter{SessionID: *sessionID, Limit: *limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list history: %v\n", err)
		return 1
	}
	if *jsonOut {
		if records == nil {
			records = []journal.Record{}
		}
		return printJSON(records)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Session", "PID", "PPID", "State", "Status", "Spawned", "Command")
	for _, r := range records {
		table.Append(shortSession(r.SessionID), strconv.Itoa(r.PID), strconv.Itoa(r.Parent),
			string(r.State), recordStatus(r), r.SpawnedAt.Local().Format(time.DateTime), r.Command)
	}
	table.Render()
	return 0
}

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	sessionID := fs.String("session", "", "Session id (default: most recent)")
	jsonOut := fs.Bool("json", false, "Output report in JSON")

	// Flags may come before or after the pid, as in 'unitd inspect 3 --json'.
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	var pidArg string
	if rest := fs.Args(); len(rest) > 0 {
		pidArg = rest[0]
		if err := fs.Parse(rest[1:]); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				return 0
			}
			return 1
		}
	}
	if pidArg == "" || isHelpToken(pidArg) {
		fmt.Fprintln(os.Stderr, "Usage: unitd inspect <pid> [--session ID] [--config PATH] [--json]")
		if isHelpToken(pidArg) {
			return 0
		}
		return 1
	}
	pid, err := strconv.Atoi(pidArg)
	if err != nil || pid < 1 {
		fmt.Fprintf(os.Stderr, "Invalid pid %q\n", pidArg)
		return 1
	}

	cfg, err := loadConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	store, closeStore, err := openJournal(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer closeStore()

	sid := *sessionID
	if sid == "" {
		latest, err := store.Sessions(ctx, 1)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list sessions: %v\n", err)
			return 1
		}
		if len(latest) == 0 {
			fmt.Fprintln(os.Stderr, "No recorded sessions")
			return 1
		}
		sid = latest[0].ID
	}

	var report string
	if *jsonOut {
		report, err = inspect.BuildJSONReport(ctx, store, sid, pid)
	} else {
		report, err = inspect.BuildReport(ctx, store, sid, pid)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to inspect unit %d: %v\n", pid, err)
		return 1
	}
	fmt.Println(report)
	return 0
}

func runTop(args []string) int {
	fs := flag.NewFlagSet("top", flag.ContinueOnError)
	cf := addClientFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}
	client, err := cf.client()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	p := tea.NewProgram(tui.NewMonitor(client.BaseURL, client.Token), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Monitor failed: %v\n", err)
		return 1
	}
	return 0
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}

func statusText(status *int) string {
	if status == nil {
		return "-"
	}
	return strconv.Itoa(*status)
}

func recordStatus(r journal.Record) string {
	switch {
	case r.Crashed:
		return "crashed"
	case r.Error != nil:
		return "error"
	default:
		return statusText(r.Status)
	}
}

func timeText(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func shortSession(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
