package mapview

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for map reconciliation.
type Metrics struct {
	SyncTotal *prometheus.CounterVec
	OpsTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers map metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SyncTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_map_sync_total",
			Help: "Map reconciliation cycles by outcome.",
		}, []string{"outcome"}),
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_map_ops_total",
			Help: "Marker operations applied by kind.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.SyncTotal, m.OpsTotal)
	return m
}

func (m *Metrics) observeSync(outcome string) {
	if m == nil {
		return
	}
	m.SyncTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observePlan(p Plan) {
	if m == nil {
		return
	}
	m.OpsTotal.WithLabelValues("add").Add(float64(len(p.Add)))
	m.OpsTotal.WithLabelValues("update").Add(float64(len(p.Update)))
	m.OpsTotal.WithLabelValues("remove").Add(float64(len(p.Remove)))
	if p.Focus != nil {
		m.OpsTotal.WithLabelValues("focus").Inc()
	}
}
