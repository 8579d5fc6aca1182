package alert

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the alert pipeline.
type Metrics struct {
	AlertsCreated       *prometheus.CounterVec
	AlertsResolved      prometheus.Counter
	IntakeFailures      prometheus.Counter
	ClassifyDuration    *prometheus.HistogramVec
	ClassifierFallbacks *prometheus.CounterVec
}

// NewMetrics registers and returns alert metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_alerts_created_total",
			Help: "Total alerts created by risk and verdict source.",
		}, []string{"risk", "source"}),
		AlertsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safewatch_alerts_resolved_total",
			Help: "Total successful resolve requests.",
		}),
		IntakeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "safewatch_intake_failures_total",
			Help: "Alerts that could not be stored.",
		}),
		ClassifyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "safewatch_classify_duration_seconds",
			Help:    "Duration of risk classification by verdict source.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 9), // 1ms .. ~65s
		}, []string{"source"}),
		ClassifierFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "safewatch_classifier_fallbacks_total",
			Help: "Heuristic fallbacks by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.AlertsCreated,
		m.AlertsResolved,
		m.IntakeFailures,
		m.ClassifyDuration,
		m.ClassifierFallbacks,
	)

	return m
}

// ObserveVerdict records one completed classification.
func (m *Metrics) ObserveVerdict(source Source, seconds float64) {
	m.ClassifyDuration.WithLabelValues(string(source)).Observe(seconds)
}

// ObserveFallback records one heuristic fallback.
func (m *Metrics) ObserveFallback(reason string) {
	m.ClassifierFallbacks.WithLabelValues(reason).Inc()
}
