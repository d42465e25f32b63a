// Package metrics exposes Prometheus collectors for the pipeline jobs.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feedrelay"

// Metrics groups every collector the jobs update.
type Metrics struct {
	items       *prometheus.CounterVec
	fetches     *prometheus.CounterVec
	publishes   *prometheus.CounterVec
	probes      *prometheus.CounterVec
	tripped     prometheus.Counter
	deleted     prometheus.Counter
	runDuration *prometheus.SummaryVec
	lastSuccess *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Feed entries processed by admission outcome",
		}, []string{"outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_total",
			Help:      "Source fetches by status",
		}, []string{"status"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Publish attempts by outcome",
		}, []string{"outcome"}),
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Source health probes by result",
		}, []string{"result"}),
		tripped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_tripped_total",
			Help:      "Sources deactivated by the circuit breaker",
		}),
		deleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Items evicted by the retention sweeper",
		}),
		runDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of job invocations",
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix timestamp of the last successful invocation",
		}, []string{"job"}),
	}

	if reg != nil {
		reg.MustRegister(m.items, m.fetches, m.publishes, m.probes,
			m.tripped, m.deleted, m.runDuration, m.lastSuccess)
	}
	return m
}

// Item counts one admission outcome.
func (m *Metrics) Item(outcome string) {
	if m == nil {
		return
	}
	m.items.WithLabelValues(outcome).Inc()
}

// Fetch counts one source fetch.
func (m *Metrics) Fetch(status string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(status).Inc()
}

// Publish counts one publish outcome.
func (m *Metrics) Publish(outcome string) {
	if m == nil {
		return
	}
	m.publishes.WithLabelValues(outcome).Inc()
}

// Probe counts one health probe.
func (m *Metrics) Probe(result string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(result).Inc()
}

// Tripped counts a source whose circuit opened.
func (m *Metrics) Tripped() {
	if m == nil {
		return
	}
	m.tripped.Inc()
}

// Deleted adds evicted items.
func (m *Metrics) Deleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deleted.Add(float64(n))
}

// Run records a finished job invocation.
func (m *Metrics) Run(job string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(job).Observe(took.Seconds())
	if err == nil {
		m.lastSuccess.WithLabelValues(job).SetToCurrentTime()
	}
}
