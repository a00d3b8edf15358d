package dispatch

import "github.com/mattjoyce/unitd/internal/host"

func hostLoad(pid int) host.Event {
	return host.Event{Kind: host.EventLoad, PID: pid}
}
