package repository

import (
	"alcyxob/fitness-billing/internal/domain"
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound = RepositoryError("not found")
	// ErrConflict is returned when a write would violate a uniqueness
	// constraint or a conditional status transition did not match.
	ErrConflict = RepositoryError("conflict")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// LedgerRepository persists ClientLedger documents. Every mutating method is
// a single atomic update of one ledger; none of them read-modify-write.
type LedgerRepository interface {
	// EnsureLedger creates an empty ledger for clientID if none exists.
	EnsureLedger(ctx context.Context, clientID primitive.ObjectID) error
	GetByClientID(ctx context.Context, clientID primitive.ObjectID) (*domain.ClientLedger, error)
	AppendPlanAssignment(ctx context.Context, clientID primitive.ObjectID, assignment domain.PlanAssignment) error
	// AppendCharge pushes the entry and increments balance and monthlyBalance
	// by its amount. RecordedAt is stamped by the store.
	AppendCharge(ctx context.Context, clientID primitive.ObjectID, entry domain.LedgerEntry) error
	SetCurrentPlan(ctx context.Context, clientID, planID primitive.ObjectID) error
	// ClearCurrentPlan unsets currentPlanId only if it still equals expected.
	// It reports whether the pointer was cleared.
	ClearCurrentPlan(ctx context.Context, clientID, expected primitive.ObjectID) (bool, error)
	// ClearBalance zeroes both running totals, stamps lastBalanceReset and
	// sets billedEntries to the length of chargeHistory, all in one write.
	ClearBalance(ctx context.Context, clientID primitive.ObjectID, at time.Time) error
	// CorrectBalance sets both running totals to corrected, provided the
	// stored balance, monthlyBalance and billedEntries still equal the
	// expected values.
	CorrectBalance(ctx context.Context, clientID primitive.ObjectID, expectedBalance, expectedMonthly decimal.Decimal, expectedBilled int, corrected decimal.Decimal) (bool, error)
	ListClientIDs(ctx context.Context) ([]primitive.ObjectID, error)
}

// InvoiceRepository persists MonthlyInvoice documents. (clientId, month) is
// unique; Create returns ErrConflict when it is violated.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *domain.MonthlyInvoice) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.MonthlyInvoice, error)
	GetByClientAndMonth(ctx context.Context, clientID primitive.ObjectID, month time.Time) (*domain.MonthlyInvoice, error)
	ListByClient(ctx context.Context, clientID primitive.ObjectID) ([]domain.MonthlyInvoice, error) // newest month first
	// MarkPaid transitions UNPAID|OVERDUE to PAID. ErrNotFound if the invoice
	// is absent, ErrConflict if it is not in a payable status.
	MarkPaid(ctx context.Context, id primitive.ObjectID, paidAt time.Time) error
	// MarkOverdue flips every UNPAID invoice whose dueDate is before now.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)
	SetStatementKey(ctx context.Context, id primitive.ObjectID, key string) error
}

// TrainingPlanRepository is the read side of the plan catalog.
type TrainingPlanRepository interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.TrainingPlan, error)
}

// WorkoutRepository is the read side of plan workouts.
type WorkoutRepository interface {
	GetByPlanID(ctx context.Context, planID primitive.ObjectID) ([]domain.Workout, error) // ordered by sequence
}

// Transactor runs fn in a store transaction. Repository calls made with the
// ctx passed to fn take part in it.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
