package acl

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for ACL evaluation. All metrics use
// the "cvsync_acl_" prefix. Methods tolerate a nil receiver, so a nil
// *Metrics acts as a no-op when a caller doesn't want metrics wired in.
type Metrics struct {
	// DecisionsTotal counts Evaluate outcomes, labeled by verdict
	// (allowed, denied, limited).
	DecisionsTotal *prometheus.CounterVec

	// ActiveSessions gauges the number of leases currently held across
	// all ALLOW rules.
	ActiveSessions prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers ACL Prometheus metrics. If registerer
// is nil, prometheus.DefaultRegisterer is used. Idempotent via sync.Once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		m := &Metrics{
			DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cvsync_acl_decisions_total",
				Help: "Total ACL evaluation outcomes, by verdict.",
			}, []string{"verdict"}),
			ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "cvsync_acl_active_sessions",
				Help: "Connections currently admitted and holding ACL capacity.",
			}),
		}
		registerer.MustRegister(m.DecisionsTotal, m.ActiveSessions)
		metricsInstance = m
	})
	return metricsInstance
}

// decision records the outcome of one Evaluate call. The gauge only
// tracks leases with counted capacity (ruleIndex >= 0): an Always
// decision bypasses counting entirely, and Release is correspondingly a
// no-op for it, so the gauge must never be incremented for it either.
func (m *Metrics) decision(d Decision, lease *Lease) {
	if m == nil {
		return
	}
	switch d {
	case DecisionAllowed:
		m.DecisionsTotal.WithLabelValues("allowed").Inc()
		if lease != nil && lease.ruleIndex >= 0 {
			m.ActiveSessions.Inc()
		}
	case DecisionDenied:
		m.DecisionsTotal.WithLabelValues("denied").Inc()
	case DecisionLimited:
		m.DecisionsTotal.WithLabelValues("limited").Inc()
	}
}

func (m *Metrics) released() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}
