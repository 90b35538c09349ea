// Package prometheus provides Prometheus-backed implementations of the
// metrics interfaces declared by the instrumented packages.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/polysafe/fsguard/pkg/audit"
	"github.com/polysafe/fsguard/pkg/metrics"
)

// auditMetrics is the Prometheus implementation of audit.Metrics.
type auditMetrics struct {
	appends *prometheus.CounterVec
	verifys *prometheus.CounterVec
}

// NewAuditMetrics creates a Prometheus-backed audit.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called),
// which audit.Open accepts as "no instrumentation".
func NewAuditMetrics() audit.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &auditMetrics{
		appends: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsguard_audit_appends_total",
				Help: "Total number of audit entries appended by outcome",
			},
			[]string{"outcome"},
		),
		verifys: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsguard_audit_verifications_total",
				Help: "Total number of audit chain verifications by result",
			},
			[]string{"result"}, // "valid", "invalid"
		),
	}
}

func (m *auditMetrics) RecordAppend(outcome audit.Outcome) {
	m.appends.WithLabelValues(outcome.String()).Inc()
}

func (m *auditMetrics) RecordVerify(valid bool) {
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.verifys.WithLabelValues(result).Inc()
}
