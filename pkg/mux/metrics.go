package mux

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks Prometheus metrics for the mux channel. All metrics use
// the "cvsync_mux_" prefix. Methods tolerate a nil receiver, so a nil
// *Metrics acts as a no-op when a caller doesn't want metrics wired in.
type Metrics struct {
	// BytesTotal counts bytes moved per sub-channel and direction.
	// Labels: channel=["0","1"], direction=[sent,received]
	BytesTotal *prometheus.CounterVec

	// ResetFrames counts RESET frames by direction.
	// Labels: channel=["0","1"], direction=[sent,received]
	ResetFrames *prometheus.CounterVec

	// AbortsTotal counts mux aborts, labeled by cause.
	AbortsTotal *prometheus.CounterVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers mux Prometheus metrics. If registerer
// is nil, prometheus.DefaultRegisterer is used. Idempotent via sync.Once,
// so repeated calls return the same instance even across multiple Mux
// sessions in one process.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	metricsOnce.Do(func() {
		if registerer == nil {
			registerer = prometheus.DefaultRegisterer
		}
		m := &Metrics{
			BytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cvsync_mux_bytes_total",
				Help: "Total bytes moved over the mux, by channel and direction.",
			}, []string{"channel", "direction"}),
			ResetFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cvsync_mux_reset_frames_total",
				Help: "Total RESET frames exchanged, by channel and direction.",
			}, []string{"channel", "direction"}),
			AbortsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "cvsync_mux_aborts_total",
				Help: "Total mux session aborts, by cause.",
			}, []string{"cause"}),
		}
		registerer.MustRegister(m.BytesTotal, m.ResetFrames, m.AbortsTotal)
		metricsInstance = m
	})
	return metricsInstance
}

func (m *Metrics) bytes(channel int, direction string, n int) {
	if m == nil {
		return
	}
	m.BytesTotal.WithLabelValues(channelLabel(channel), direction).Add(float64(n))
}

func (m *Metrics) reset(channel int, direction string) {
	if m == nil {
		return
	}
	m.ResetFrames.WithLabelValues(channelLabel(channel), direction).Inc()
}

func (m *Metrics) abort(cause string) {
	if m == nil {
		return
	}
	m.AbortsTotal.WithLabelValues(cause).Inc()
}

func channelLabel(ch int) string {
	if ch == 0 {
		return "0"
	}
	return "1"
}
