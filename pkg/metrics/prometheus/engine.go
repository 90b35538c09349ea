package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/polysafe/fsguard/pkg/fstxn"
	"github.com/polysafe/fsguard/pkg/metrics"
)

// engineMetrics is the Prometheus implementation of fstxn.Metrics.
type engineMetrics struct {
	authorizations *prometheus.CounterVec
	steps          *prometheus.CounterVec
	transactions   *prometheus.CounterVec
}

// NewEngineMetrics creates a Prometheus-backed fstxn.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewEngineMetrics() fstxn.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &engineMetrics{
		authorizations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsguard_engine_authorizations_total",
				Help: "Total number of planned operations by authorization result",
			},
			[]string{"result"}, // "allowed", "denied"
		),
		steps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsguard_engine_steps_total",
				Help: "Total number of staged steps by operation kind and result",
			},
			[]string{"kind", "result"}, // result: "ok", "failed"
		),
		transactions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsguard_engine_transactions_total",
				Help: "Total number of transactions by terminal outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *engineMetrics) RecordAuthorization(allowed bool) {
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.authorizations.WithLabelValues(result).Inc()
}

func (m *engineMetrics) RecordStep(kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.steps.WithLabelValues(kind, result).Inc()
}

func (m *engineMetrics) RecordTransaction(outcome string) {
	m.transactions.WithLabelValues(outcome).Inc()
}
