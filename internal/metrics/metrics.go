// Package metrics holds the Prometheus collectors for the billing ledger.
// A nil *Metrics is valid and records nothing, so services and tests can run
// without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChargesAppended        *prometheus.CounterVec
	EntitlementResolutions *prometheus.CounterVec
	PointerRepairs         *prometheus.CounterVec
	InvoicesGenerated      *prometheus.CounterVec
	InvoicesPaid           prometheus.Counter
	InvoicesOverdue        prometheus.Counter
	BalanceCorrections     prometheus.Counter
	SchedulerRuns          *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChargesAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_charges_appended_total",
				Help: "Ledger entries appended, by reason",
			},
			[]string{"reason"},
		),
		EntitlementResolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_entitlement_resolutions_total",
				Help: "Entitlement resolutions, by resulting status",
			},
			[]string{"status"},
		),
		PointerRepairs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_pointer_repairs_total",
				Help: "Attempts to clear a stale current plan pointer, by outcome",
			},
			[]string{"outcome"},
		),
		InvoicesGenerated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_invoices_generated_total",
				Help: "Monthly invoice generation requests, by outcome (created, existing, conflict)",
			},
			[]string{"outcome"},
		),
		InvoicesPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_invoices_paid_total",
			Help: "Invoices transitioned to PAID",
		}),
		InvoicesOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_invoices_overdue_total",
			Help: "Invoices transitioned to OVERDUE by the sweep",
		}),
		BalanceCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "billing_balance_corrections_total",
			Help: "Running balances rewritten by reconciliation",
		}),
		SchedulerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_scheduler_runs_total",
				Help: "Scheduled job runs, by job and outcome",
			},
			[]string{"job", "outcome"},
		),
	}

	reg.MustRegister(
		m.ChargesAppended,
		m.EntitlementResolutions,
		m.PointerRepairs,
		m.InvoicesGenerated,
		m.InvoicesPaid,
		m.InvoicesOverdue,
		m.BalanceCorrections,
		m.SchedulerRuns,
	)
	return m
}

func (m *Metrics) ChargeAppended(reason string) {
	if m == nil {
		return
	}
	m.ChargesAppended.WithLabelValues(reason).Inc()
}

func (m *Metrics) EntitlementResolved(status string) {
	if m == nil {
		return
	}
	m.EntitlementResolutions.WithLabelValues(status).Inc()
}

func (m *Metrics) PointerRepair(outcome string) {
	if m == nil {
		return
	}
	m.PointerRepairs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) InvoiceGenerated(outcome string) {
	if m == nil {
		return
	}
	m.InvoicesGenerated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) InvoicePaid() {
	if m == nil {
		return
	}
	m.InvoicesPaid.Inc()
}

func (m *Metrics) InvoicesMarkedOverdue(n int64) {
	if m == nil {
		return
	}
	m.InvoicesOverdue.Add(float64(n))
}

func (m *Metrics) BalanceCorrected() {
	if m == nil {
		return
	}
	m.BalanceCorrections.Inc()
}

func (m *Metrics) SchedulerRun(job, outcome string) {
	if m == nil {
		return
	}
	m.SchedulerRuns.WithLabelValues(job, outcome).Inc()
}
