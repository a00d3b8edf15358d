package output

import (
	"fmt"
	"math"
	"strings"
)

// Progress renders the root unit's load status line. It remembers the
// last url seen so that a change of url finishes the previous line.
type Progress struct {
	lastURL   string
	lastTotal int64
}

// Update returns the text to print for a progress event. width is the
// terminal width in columns; zero disables truncation.
func (p *Progress) Update(url string, loaded, total int64, width int) string {
	name := url
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	if p.lastURL != "" && p.lastURL != name {
		b.WriteString(p.doneLine(width))
	}
	if name == "" {
		return b.String()
	}
	p.lastURL = name
	p.lastTotal = total

	msg := "Loading " + name
	if total > 0 {
		msg += fmt.Sprintf(" [%d KiB/%d KiB %d%%]",
			roundDiv(loaded, 1024), roundDiv(total, 1024), roundDiv(loaded*100, total))
	}
	b.WriteString("\r")
	b.WriteString(tail(msg, width))
	return b.String()
}

// Done returns the completion text printed when the root unit loads,
// followed by an ANSI reset.
func (p *Progress) Done(width int) string {
	if p.lastURL == "" {
		return "Loaded.\n" + ANSIReset
	}
	return p.doneLine(width) + ANSIReset
}

// LastURL returns the file name of the last progress event.
func (p *Progress) LastURL() string {
	return p.lastURL
}

func (p *Progress) doneLine(width int) string {
	msg := "\rLoaded " + p.lastURL
	if p.lastTotal > 0 {
		msg += fmt.Sprintf(" [%d KiB]", roundDiv(p.lastTotal, 1024))
	}
	return "\r" + strings.Repeat(" ", width) + head(msg, width) + "\n"
}

func roundDiv(n, d int64) int64 {
	return int64(math.Round(float64(n) / float64(d)))
}

func head(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[:width]
}

func tail(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	return s[len(s)-width:]
}
