// Package inspect renders the recorded lineage of one unit: its ancestors
// up to the session root and the children it spawned.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattjoyce/unitd/internal/journal"
)

// lineageLimit bounds how much of a session's history is scanned.
const lineageLimit = 1000

// Report is the structured JSON representation of a lineage report.
type Report struct {
	SessionID string `json:"session_id"`
	Unit      Step   `json:"unit"`
	Ancestors []Step `json:"ancestors"`
	Children  []Step `json:"children"`
}

// Step is one unit in the lineage.
type Step struct {
	PID      int            `json:"pid"`
	Parent   int            `json:"parent"`
	Command  string         `json:"command"`
	State    journal.State  `json:"state"`
	Status   *int           `json:"status,omitempty"`
	Crashed  bool           `json:"crashed,omitempty"`
	Error    string         `json:"error,omitempty"`
	Digest   string         `json:"digest,omitempty"`
	Lifetime *time.Duration `json:"lifetime_ns,omitempty"`
}

// Source is the subset of the journal the report reads.
type Source interface {
	Get(ctx context.Context, sessionID string, pid int) (*journal.Record, error)
	List(ctx context.Context, f journal.Filter) ([]journal.Record, error)
}

// BuildReport renders a terminal-friendly lineage report for a unit.
func BuildReport(ctx context.Context, src Source, sessionID string, pid int) (string, error) {
	report, err := gatherReportData(ctx, src, sessionID, pid)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Lineage Report\n")
	fmt.Fprintf(&out, "Session     : %s\n", report.SessionID)
	fmt.Fprintf(&out, "PID         : %d\n", report.Unit.PID)
	fmt.Fprintf(&out, "Command     : %s\n", renderUnset(report.Unit.Command, "<unknown>"))
	fmt.Fprintf(&out, "State       : %s\n", describe(report.Unit))
	if report.Unit.Digest != "" {
		fmt.Fprintf(&out, "Manifest    : %s\n", report.Unit.Digest)
	}
	fmt.Fprintf(&out, "Depth       : %d\n", len(report.Ancestors))
	fmt.Fprintf(&out, "\n")

	fmt.Fprintf(&out, "Ancestors\n")
	if len(report.Ancestors) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for i, a := range report.Ancestors {
		fmt.Fprintf(&out, "  %s%d %s (%s)\n", strings.Repeat("  ", i), a.PID, renderUnset(a.Command, "?"), describe(a))
	}

	fmt.Fprintf(&out, "\nChildren\n")
	if len(report.Children) == 0 {
		fmt.Fprintf(&out, "  <none>\n")
	}
	for _, c := range report.Children {
		fmt.Fprintf(&out, "  - %d %s (%s)\n", c.PID, renderUnset(c.Command, "?"), describe(c))
	}

	return strings.TrimRight(out.String(), "\n") + "\n", nil
}

// BuildJSONReport returns the machine-readable JSON lineage report.
func BuildJSONReport(ctx context.Context, src Source, sessionID string, pid int) (string, error) {
	report, err := gatherReportData(ctx, src, sessionID, pid)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

func gatherReportData(ctx context.Context, src Source, sessionID string, pid int) (*Report, error) {
	rec, err := src.Get(ctx, sessionID, pid)
	if errors.Is(err, journal.ErrNotFound) {
		return nil, fmt.Errorf("unit %d not found in session %s", pid, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup unit: %w", err)
	}

	all, err := src.List(ctx, journal.Filter{SessionID: sessionID, Limit: lineageLimit})
	if err != nil {
		return nil, fmt.Errorf("list session units: %w", err)
	}
	byPID := make(map[int]journal.Record, len(all))
	for _, r := range all {
		byPID[r.PID] = r
	}

	report := &Report{SessionID: sessionID, Unit: stepFrom(*rec)}

	// Walk parents root-first. The seen set guards against corrupt rows.
	seen := map[int]bool{rec.PID: true}
	var chain []Step
	for parent := rec.Parent; parent != 0 && !seen[parent]; {
		seen[parent] = true
		p, ok := byPID[parent]
		if !ok {
			chain = append(chain, Step{PID: parent})
			break
		}
		chain = append(chain, stepFrom(p))
		parent = p.Parent
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	report.Ancestors = chain

	for _, r := range all {
		if r.Parent == pid && r.PID != pid {
			report.Children = append(report.Children, stepFrom(r))
		}
	}
	sort.Slice(report.Children, func(i, j int) bool { return report.Children[i].PID < report.Children[j].PID })
	return report, nil
}

func stepFrom(r journal.Record) Step {
	s := Step{
		PID:     r.PID,
		Parent:  r.Parent,
		Command: r.Command,
		State:   r.State,
		Status:  r.Status,
		Crashed: r.Crashed,
	}
	if r.Error != nil {
		s.Error = *r.Error
	}
	if r.Digest != nil {
		s.Digest = *r.Digest
	}
	if r.ExitedAt != nil {
		d := r.ExitedAt.Sub(r.SpawnedAt)
		s.Lifetime = &d
	}
	return s
}

func describe(s Step) string {
	switch {
	case s.State == "":
		return "unrecorded"
	case s.State == journal.StateLoadFailed:
		return "load failed: " + renderUnset(s.Error, "unknown error")
	case s.Crashed:
		return string(s.State) + ", crashed"
	case s.Status != nil:
		out := fmt.Sprintf("%s, status=%d", s.State, *s.Status)
		if s.Lifetime != nil {
			out += ", ran " + s.Lifetime.Round(time.Millisecond).String()
		}
		return out
	default:
		return string(s.State)
	}
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
