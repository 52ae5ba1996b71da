package service

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/metrics"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BalanceReport is the outcome of reconciling a ledger's running totals
// against its charge history.
type BalanceReport struct {
	Stored    decimal.Decimal `json:"stored"`
	Monthly   decimal.Decimal `json:"monthly"`
	Derived   decimal.Decimal `json:"derived"`
	Drift     decimal.Decimal `json:"drift"`
	Corrected bool            `json:"corrected"`
}

// LedgerService is the penalty/charge accumulator plus the plan-history
// writes that belong with it.
type LedgerService interface {
	OpenLedger(ctx context.Context, clientID primitive.ObjectID) (*domain.ClientLedger, error)
	GetLedger(ctx context.Context, clientID primitive.ObjectID) (*domain.ClientLedger, error)

	// AppendCharge does not deduplicate. Callers must not charge the same
	// event twice.
	AppendCharge(ctx context.Context, clientID primitive.ObjectID, entry domain.LedgerEntry) error
	// AssignPlan records the assignment and, for a positive weeklyCost, a
	// weekly plan cost charge, in one transaction.
	AssignPlan(ctx context.Context, clientID primitive.ObjectID, assignment domain.PlanAssignment, weeklyCost decimal.Decimal) error
	UnlockPlan(ctx context.Context, clientID, planID primitive.ObjectID) error

	// ClearBalance zeroes the running totals. Only invoice payment calls it.
	ClearBalance(ctx context.Context, clientID primitive.ObjectID) error
	ReconcileBalance(ctx context.Context, clientID primitive.ObjectID) (*BalanceReport, error)
}

type ledgerService struct {
	ledgerRepo repository.LedgerRepository
	tx         repository.Transactor
	cal        Calendar
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
}

func NewLedgerService(
	ledgerRepo repository.LedgerRepository,
	tx repository.Transactor,
	cal Calendar,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) LedgerService {
	return &ledgerService{
		ledgerRepo: ledgerRepo,
		tx:         tx,
		cal:        cal,
		logger:     logger,
		metrics:    m,
	}
}

func (s *ledgerService) OpenLedger(ctx context.Context, clientID primitive.ObjectID) (*domain.ClientLedger, error) {
	if clientID.IsZero() {
		return nil, fmt.Errorf("%w: client id is required", ErrInvalidInput)
	}
	if err := s.ledgerRepo.EnsureLedger(ctx, clientID); err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return s.GetLedger(ctx, clientID)
}

func (s *ledgerService) GetLedger(ctx context.Context, clientID primitive.ObjectID) (*domain.ClientLedger, error) {
	ledger, err := s.ledgerRepo.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, mapLedgerErr(err)
	}
	return ledger, nil
}

func (s *ledgerService) AppendCharge(ctx context.Context, clientID primitive.ObjectID, entry domain.LedgerEntry) error {
	if entry.Date.IsZero() {
		return fmt.Errorf("%w: charge date is required", ErrInvalidInput)
	}
	if entry.Reason == "" {
		return fmt.Errorf("%w: charge reason is required", ErrInvalidInput)
	}
	// Informational only; reset ordering is by position in the history
	entry.RecordedAt = s.cal.Now().UTC()

	if err := s.ledgerRepo.AppendCharge(ctx, clientID, entry); err != nil {
		return mapLedgerErr(err)
	}

	s.metrics.ChargeAppended(string(entry.Reason))
	s.logger.WithFields(logrus.Fields{
		"clientId": clientID.Hex(),
		"amount":   entry.Amount.String(),
		"reason":   entry.Reason,
	}).Debug("charge appended")
	return nil
}

func (s *ledgerService) AssignPlan(ctx context.Context, clientID primitive.ObjectID, a domain.PlanAssignment, weeklyCost decimal.Decimal) error {
	// Validate before opening a transaction
	switch {
	case clientID.IsZero() || a.PlanID.IsZero():
		return fmt.Errorf("%w: client and plan ids are required", ErrInvalidInput)
	case a.PlanStartDate.IsZero() || a.PlanEndDate.IsZero():
		return fmt.Errorf("%w: plan start and end dates are required", ErrInvalidInput)
	case domain.EndOfDay(a.PlanEndDate, s.cal.Location).Before(domain.StartOfDay(a.PlanStartDate, s.cal.Location)):
		return fmt.Errorf("%w: plan ends before it starts", ErrInvalidInput)
	case weeklyCost.IsNegative():
		return fmt.Errorf("%w: weekly cost must not be negative", ErrInvalidInput)
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = s.cal.Now().UTC()
	}

	// History entry and weekly cost land together
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.ledgerRepo.EnsureLedger(ctx, clientID); err != nil {
			return err
		}
		if err := s.ledgerRepo.AppendPlanAssignment(ctx, clientID, a); err != nil {
			return err
		}
		// Zero cost: history only, no charge
		if !weeklyCost.IsPositive() {
			return nil
		}
		return s.ledgerRepo.AppendCharge(ctx, clientID, domain.LedgerEntry{
			Date:       a.AssignedAt,
			Amount:     weeklyCost,
			Reason:     domain.ReasonWeeklyPlanCost,
			RecordedAt: s.cal.Now().UTC(),
		})
	})
	if err != nil {
		return mapLedgerErr(err)
	}

	if weeklyCost.IsPositive() {
		s.metrics.ChargeAppended(string(domain.ReasonWeeklyPlanCost))
	}
	s.logger.WithFields(logrus.Fields{
		"clientId":   clientID.Hex(),
		"planId":     a.PlanID.Hex(),
		"weeklyCost": weeklyCost.String(),
	}).Info("plan assigned")
	return nil
}

func (s *ledgerService) UnlockPlan(ctx context.Context, clientID, planID primitive.ObjectID) error {
	ledger, err := s.GetLedger(ctx, clientID)
	if err != nil {
		return err
	}
	// Only plans already in the client's history can be unlocked
	if _, ok := ledger.FindPlan(planID); !ok {
		return ErrPlanNotInHistory
	}
	if err := s.ledgerRepo.SetCurrentPlan(ctx, clientID, planID); err != nil {
		return mapLedgerErr(err)
	}

	s.logger.WithFields(logrus.Fields{"clientId": clientID.Hex(), "planId": planID.Hex()}).Info("plan unlocked")
	return nil
}

func (s *ledgerService) ClearBalance(ctx context.Context, clientID primitive.ObjectID) error {
	if err := s.ledgerRepo.ClearBalance(ctx, clientID, s.cal.Now().UTC()); err != nil {
		return mapLedgerErr(err)
	}
	return nil
}

// ReconcileBalance recomputes the running totals from the entries appended
// since the last reset and rewrites them if they drifted. The rewrite is a
// compare-and-set; if a charge or a reset lands in between, nothing is
// written and the report says so.
func (s *ledgerService) ReconcileBalance(ctx context.Context, clientID primitive.ObjectID) (*BalanceReport, error) {
	ledger, err := s.GetLedger(ctx, clientID)
	if err != nil {
		return nil, err
	}

	// Derive from history past the reset marker
	derived := ledger.UnbilledTotal()
	report := &BalanceReport{
		Stored:  ledger.Balance,
		Monthly: ledger.MonthlyBalance,
		Derived: derived,
		Drift:   ledger.Balance.Sub(derived),
	}
	// No drift, nothing to write
	if ledger.Balance.Equal(derived) && ledger.MonthlyBalance.Equal(derived) {
		return report, nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"clientId": clientID.Hex(),
		"stored":   ledger.Balance.String(),
		"monthly":  ledger.MonthlyBalance.String(),
		"derived":  derived.String(),
	})

	// Write back only if nothing moved since the read
	ok, err := s.ledgerRepo.CorrectBalance(ctx, clientID, ledger.Balance, ledger.MonthlyBalance, ledger.BilledEntries, derived)
	if err != nil {
		return nil, fmt.Errorf("correct balance: %w", err)
	}
	if !ok {
		log.Warn("balance changed during reconciliation, correction skipped")
		return report, nil
	}

	report.Corrected = true
	s.metrics.BalanceCorrected()
	log.Warn("running balance drifted from charge history, corrected")
	return report, nil
}

func mapLedgerErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrLedgerNotFound
	}
	return err
}
