package acl

import (
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatorWithMetricsTracksActiveSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTestMetrics(t, reg)

	ev := NewEvaluator([]Rule{{Status: Allow, Network: mustCIDR(t, "10.0.0.0/8")}}, 0).WithMetrics(m)
	peer := net.ParseIP("10.0.0.5")

	decision, lease, err := ev.Evaluate(peer)
	require.NoError(t, err)
	require.Equal(t, DecisionAllowed, decision)
	assert.Equal(t, float64(1), gaugeValue(t, m.ActiveSessions))

	ev.Release(lease)
	assert.Equal(t, float64(0), gaugeValue(t, m.ActiveSessions))
}

func TestEvaluatorWithMetricsDoesNotGaugeAlwaysRule(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTestMetrics(t, reg)

	ev := NewEvaluator([]Rule{{Status: Always, Network: mustCIDR(t, "0.0.0.0/0")}}, 0).WithMetrics(m)
	decision, lease, err := ev.Evaluate(net.ParseIP("1.2.3.4"))
	require.NoError(t, err)
	require.Equal(t, DecisionAllowed, decision)
	assert.Equal(t, float64(0), gaugeValue(t, m.ActiveSessions))

	ev.Release(lease)
	assert.Equal(t, float64(0), gaugeValue(t, m.ActiveSessions))
}

func TestNilMetricsIsNoOp(t *testing.T) {
	ev := NewEvaluator(nil, 0)
	_, _, err := ev.Evaluate(net.ParseIP("1.2.3.4"))
	require.NoError(t, err)
}

// newTestMetrics builds a Metrics instance on a fresh registry, bypassing
// the package-level sync.Once so tests don't collide on the default
// registerer.
func newTestMetrics(t *testing.T, reg *prometheus.Registry) *Metrics {
	t.Helper()
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_acl_decisions_total",
		}, []string{"verdict"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "test_acl_active_sessions",
		}),
	}
	reg.MustRegister(m.DecisionsTotal, m.ActiveSessions)
	return m
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}
