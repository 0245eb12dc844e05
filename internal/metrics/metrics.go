// Package metrics exposes memory store activity to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sesm/sesm/internal/memory"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry
	events   *prometheus.CounterVec
}

// New registers store gauges for s and the event counter. Attach the result
// to the store with WithObserver or AddObserver to feed the counter.
func New(s *memory.Store) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sesm",
			Subsystem: "memory",
			Name:      "events_total",
			Help:      "Memory item lifecycle events by type.",
		}, []string{"event"}),
	}
	for _, ev := range []memory.EventType{
		memory.EventCreated, memory.EventReinforced, memory.EventPromoted, memory.EventExpired,
	} {
		m.events.WithLabelValues(string(ev))
	}
	reg.MustRegister(m.events)

	for _, kind := range []memory.Kind{memory.Episodic, memory.Knowledge} {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   "sesm",
			Subsystem:   "memory",
			Name:        "items",
			Help:        "Live memory items by kind.",
			ConstLabels: prometheus.Labels{"kind": string(kind)},
		}, func() float64 {
			st := s.Stats()
			if kind == memory.Knowledge {
				return float64(st.Knowledge)
			}
			return float64(st.Episodic)
		}))
	}
	return m
}

// Observe implements memory.Observer.
func (m *Metrics) Observe(ev memory.Event) {
	m.events.WithLabelValues(string(ev.Type)).Inc()
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
