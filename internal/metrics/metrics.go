// Package metrics exposes Prometheus counters for session and registry
// activity. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "puricare"

// Result label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultStale   = "stale"
	ResultApplied = "applied"
	ResultCleared = "cleared"
	ResultIgnored = "ignored"
)

// Base label values for registry resolution.
const (
	BaseRemote   = "remote"
	BaseFallback = "fallback"
)

// Metrics holds the application counters.
type Metrics struct {
	sessionWrites *prometheus.CounterVec
	syncEvents    *prometheus.CounterVec
	resolves      *prometheus.CounterVec
	remoteFetches *prometheus.CounterVec
}

// New registers the counters with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "writes_total",
			Help:      "Persisted session writes by result.",
		}, []string{"result"}),
		syncEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "sync_events_total",
			Help:      "External session changes by outcome.",
		}, []string{"result"}),
		resolves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "resolves_total",
			Help:      "Device list resolutions by base source.",
		}, []string{"base"}),
		remoteFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "fetches_total",
			Help:      "Remote device list fetches by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) SessionWrite(result string) {
	if m == nil {
		return
	}
	m.sessionWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) SyncEvent(result string) {
	if m == nil {
		return
	}
	m.syncEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) Resolve(base string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(base).Inc()
}

func (m *Metrics) RemoteFetch(result string) {
	if m == nil {
		return
	}
	m.remoteFetches.WithLabelValues(result).Inc()
}
