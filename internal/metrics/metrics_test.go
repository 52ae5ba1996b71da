package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ChargeAppended("Missed workout")
	m.ChargeAppended("Missed workout")
	m.InvoiceGenerated("created")
	m.InvoicesMarkedOverdue(3)
	m.SchedulerRun("invoicing", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ChargesAppended.WithLabelValues("Missed workout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoicesGenerated.WithLabelValues("created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.InvoicesOverdue))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchedulerRuns.WithLabelValues("invoicing", "ok")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChargeAppended("x")
		m.EntitlementResolved("none")
		m.PointerRepair("cleared")
		m.InvoiceGenerated("existing")
		m.InvoicePaid()
		m.InvoicesMarkedOverdue(1)
		m.BalanceCorrected()
		m.SchedulerRun("overdue", "error")
	})
}
