// Package metrics exposes Prometheus collectors for the session core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the unitd collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	spawned  prometheus.Counter
	exited   *prometheus.CounterVec
	waits    *prometheus.CounterVec
	messages *prometheus.CounterVec
	running  prometheus.Gauge
	zombies  prometheus.Gauge
}

// New creates and registers the collectors, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		spawned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "unitd_units_spawned_total",
			Help: "Total number of units launched",
		}),
		exited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unitd_units_exited_total",
			Help: "Total number of unit terminations by kind",
		}, []string{"kind"}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unitd_waits_total",
			Help: "Total number of wait calls by outcome",
		}, []string{"outcome"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "unitd_messages_total",
			Help: "Total number of unit messages by kind",
		}, []string{"kind"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unitd_units_running",
			Help: "Units that have not exited",
		}),
		zombies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "unitd_zombies",
			Help: "Exited units whose status has not been collected",
		}),
	}
	m.registry.MustRegister(
		m.spawned, m.exited, m.waits, m.messages, m.running, m.zombies,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) UnitSpawned() {
	if m == nil {
		return
	}
	m.spawned.Inc()
}

// UnitExited counts a termination; kind is "exit", "crash" or "load_error".
func (m *Metrics) UnitExited(kind string) {
	if m == nil {
		return
	}
	m.exited.WithLabelValues(kind).Inc()
}

func (m *Metrics) Wait(outcome string) {
	if m == nil {
		return
	}
	m.waits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Message(kind string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(kind).Inc()
}

// SetTable records the current running and zombie counts.
func (m *Metrics) SetTable(running, zombies int) {
	if m == nil {
		return
	}
	m.running.Set(float64(running))
	m.zombies.Set(float64(zombies))
}
