// Package metrics provides Prometheus metrics for purge runs.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-blackswan/chatpurge/internal/purge"
)

// Metrics holds all Prometheus metrics for a purge process.
type Metrics struct {
	FetchesTotal   *prometheus.CounterVec
	DeletesTotal   *prometheus.CounterVec
	DeletedTotal   prometheus.Gauge
	ProcessedTotal prometheus.Gauge
	CurrentDelay   prometheus.Gauge
	RunState       *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatpurge_page_fetches_total",
				Help: "Page read attempts by result.",
			},
			[]string{"result"},
		),
		DeletesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatpurge_deletes_total",
				Help: "Delete calls by outcome.",
			},
			[]string{"outcome"},
		),
		DeletedTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatpurge_messages_deleted",
				Help: "Messages deleted in the current run.",
			},
		),
		ProcessedTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatpurge_messages_processed",
				Help: "Messages read in the current run.",
			},
		),
		CurrentDelay: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatpurge_current_delay_seconds",
				Help: "Adaptive delay between delete calls.",
			},
		),
		RunState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chatpurge_run_state",
				Help: "1 for the current run state, 0 otherwise.",
			},
			[]string{"state"},
		),
		registry: reg,
	}

	reg.MustRegister(m.FetchesTotal)
	reg.MustRegister(m.DeletesTotal)
	reg.MustRegister(m.DeletedTotal)
	reg.MustRegister(m.ProcessedTotal)
	reg.MustRegister(m.CurrentDelay)
	reg.MustRegister(m.RunState)

	return m
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch increments the fetch counter.
func (m *Metrics) ObserveFetch(result purge.FetchResult, _ error) {
	m.FetchesTotal.WithLabelValues(string(result)).Inc()
}

// ObserveDelete increments the delete counter.
func (m *Metrics) ObserveDelete(_ purge.Message, outcome purge.DeleteOutcome, _ error) {
	m.DeletesTotal.WithLabelValues(outcome.String()).Inc()
}

// Publish mirrors a snapshot into the gauges.
func (m *Metrics) Publish(snap purge.Snapshot) {
	m.DeletedTotal.Set(float64(snap.TotalDeleted))
	m.ProcessedTotal.Set(float64(snap.TotalProcessed))
	m.CurrentDelay.Set(snap.CurrentDelay.Seconds())
	for _, s := range []purge.RunState{purge.Running, purge.Paused, purge.Stopped} {
		v := 0.0
		if s == snap.State {
			v = 1
		}
		m.RunState.WithLabelValues(s.String()).Set(v)
	}
}
