package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChargeReason is the fixed vocabulary attached to every ledger entry.
type ChargeReason string

const (
	ReasonMissedWorkout  ChargeReason = "Missed workout"
	ReasonWeeklyPlanCost ChargeReason = "Weekly plan cost"
)

// PlanAssignment is one historical or future assignment of a training plan to
// a client. Entries are appended, never edited.
type PlanAssignment struct {
	PlanID        primitive.ObjectID `bson:"planId" json:"planId"`
	PlanStartDate time.Time          `bson:"planStartDate" json:"planStartDate"`
	PlanEndDate   time.Time          `bson:"planEndDate" json:"planEndDate"` // inclusive, whole day
	AssignedAt    time.Time          `bson:"assignedAt" json:"assignedAt"`
	TrainerID     primitive.ObjectID `bson:"trainerId" json:"trainerId"`
}

// LedgerEntry is a single dated charge. The ledger is append-only.
type LedgerEntry struct {
	Date   time.Time       `bson:"date" json:"date"`
	Amount decimal.Decimal `bson:"amount" json:"amount"`
	Reason ChargeReason    `bson:"reason" json:"reason"`
	// RecordedAt is when the entry was written. It is informational; a
	// later entry can carry an earlier RecordedAt.
	RecordedAt time.Time `bson:"recordedAt" json:"recordedAt"`
}

// ClientLedger is the per-client billing record.
type ClientLedger struct {
	ClientID primitive.ObjectID `bson:"_id" json:"clientId"`
	// CurrentPlanID points at the plan the client has unlocked (paid for).
	CurrentPlanID *primitive.ObjectID `bson:"currentPlanId,omitempty" json:"currentPlanId,omitempty"`
	PlanHistory   []PlanAssignment    `bson:"planHistory" json:"planHistory"`
	ChargeHistory []LedgerEntry       `bson:"chargeHistory" json:"chargeHistory"`

	// Running totals, a cache over the ChargeHistory entries after the first
	// BilledEntries.
	Balance          decimal.Decimal `bson:"balance" json:"balance"`
	MonthlyBalance   decimal.Decimal `bson:"monthlyBalance" json:"monthlyBalance"`
	LastBalanceReset *time.Time      `bson:"lastBalanceReset,omitempty" json:"lastBalanceReset,omitempty"`
	// BilledEntries is the length of ChargeHistory when the balance was last
	// cleared. The store sets it in the same write that zeroes the totals.
	BilledEntries int `bson:"billedEntries" json:"billedEntries"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// FindPlan returns the history entry for planID, if any. When a plan was
// assigned more than once the most recently assigned entry wins.
func (l *ClientLedger) FindPlan(planID primitive.ObjectID) (*PlanAssignment, bool) {
	var found *PlanAssignment
	for i := range l.PlanHistory {
		p := &l.PlanHistory[i]
		if p.PlanID != planID {
			continue
		}
		if found == nil || p.AssignedAt.After(found.AssignedAt) {
			found = p
		}
	}
	return found, found != nil
}

// UnbilledTotal sums the entries appended after the last balance reset. This
// is what Balance should equal if every incremental update landed.
//
// Position in the append-only history decides, not RecordedAt: a charge
// stamped before a reset can still commit after it.
func (l *ClientLedger) UnbilledTotal() decimal.Decimal {
	billed := min(max(l.BilledEntries, 0), len(l.ChargeHistory))
	total := decimal.Zero
	for _, e := range l.ChargeHistory[billed:] {
		total = total.Add(e.Amount)
	}
	return total
}

// ChargeSummary is the per-reason aggregation of a set of ledger entries.
type ChargeSummary struct {
	Penalties decimal.Decimal
	PlanCosts decimal.Decimal
	// Excluded holds amounts whose reason is neither a penalty nor a plan
	// cost. They are reported but never billed.
	Excluded decimal.Decimal
}

// Total is the billable amount: penalties plus plan costs.
func (s ChargeSummary) Total() decimal.Decimal {
	return s.Penalties.Add(s.PlanCosts)
}

// SummarizeCharges aggregates entries dated within [from, to], both ends inclusive.
func SummarizeCharges(entries []LedgerEntry, from, to time.Time) ChargeSummary {
	sum := ChargeSummary{Penalties: decimal.Zero, PlanCosts: decimal.Zero, Excluded: decimal.Zero}
	for _, e := range entries {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		switch e.Reason {
		case ReasonMissedWorkout:
			sum.Penalties = sum.Penalties.Add(e.Amount)
		case ReasonWeeklyPlanCost:
			sum.PlanCosts = sum.PlanCosts.Add(e.Amount)
		default:
			sum.Excluded = sum.Excluded.Add(e.Amount)
		}
	}
	return sum
}
