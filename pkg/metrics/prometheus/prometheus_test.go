package prometheus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polysafe/fsguard/pkg/audit"
	"github.com/polysafe/fsguard/pkg/metrics"
)

// The registry is a process-wide singleton and collectors can only be
// registered once, so the whole surface is exercised in one test.
func TestMetricsLifecycle(t *testing.T) {
	assert.Nil(t, NewAuditMetrics())
	assert.Nil(t, NewEngineMetrics())

	metrics.InitRegistry()
	metrics.InitRegistry() // idempotent
	require.True(t, metrics.IsEnabled())

	am := NewAuditMetrics()
	require.NotNil(t, am)
	am.RecordAppend(audit.OutcomeCommitted)
	am.RecordAppend(audit.OutcomeDenied)
	am.RecordVerify(true)
	am.RecordVerify(false)

	em := NewEngineMetrics()
	require.NotNil(t, em)
	em.RecordAuthorization(true)
	em.RecordAuthorization(false)
	em.RecordStep("write-file", true)
	em.RecordStep("mkdir", false)
	em.RecordTransaction("committed")

	families, err := metrics.GetRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["fsguard_audit_appends_total"])
	assert.True(t, names["fsguard_audit_verifications_total"])
	assert.True(t, names["fsguard_engine_transactions_total"])
}
