package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aretw0/weave/pkg/domain"
)

// Metrics is an observer that exports interpreter activity to Prometheus.
type Metrics struct {
	events    *prometheus.CounterVec
	actions   *prometheus.CounterVec
	tension   *prometheus.HistogramVec
	coherence *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg registers nothing, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weave_events_total",
				Help: "Total number of interpreter events by type",
			},
			[]string{"type"},
		),
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weave_actions_total",
				Help: "Total number of actions fired by tension rules",
			},
			[]string{"action"},
		),
		tension: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weave_tension",
				Help:    "Distribution of computed tension values",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 50},
			},
			[]string{"sensor"},
		),
		coherence: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "weave_coherence",
				Help: "Coherence set by the last successful resolve",
			},
			[]string{"session"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.actions, m.tension, m.coherence)
	}
	return m
}

func (m *Metrics) Observe(_ context.Context, ev domain.Event) {
	m.events.WithLabelValues(string(ev.Type)).Inc()
	switch ev.Type {
	case domain.EventTension:
		m.tension.WithLabelValues(ev.Sensor).Observe(ev.Tension)
		if ev.Fired {
			m.actions.WithLabelValues(ev.Action).Inc()
		}
	case domain.EventResolve:
		m.coherence.WithLabelValues(ev.SessionID).Set(ev.Coherence)
	}
}

// Collectors returns the underlying collectors, e.g. for a custom registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.events, m.actions, m.tension, m.coherence}
}
