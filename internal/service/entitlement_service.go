package service

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/metrics"
	"alcyxob/fitness-billing/internal/repository"
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EntitlementService answers which plan a client should currently see.
type EntitlementService interface {
	// ResolveCurrentPlan may clear a stale currentPlanId as a side effect.
	// A failed repair is logged and never fails the call.
	ResolveCurrentPlan(ctx context.Context, clientID primitive.ObjectID) (domain.Entitlement, error)
}

type entitlementService struct {
	ledgerRepo repository.LedgerRepository
	cal        Calendar
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
}

func NewEntitlementService(
	ledgerRepo repository.LedgerRepository,
	cal Calendar,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) EntitlementService {
	return &entitlementService{
		ledgerRepo: ledgerRepo,
		cal:        cal,
		logger:     logger,
		metrics:    m,
	}
}

func (s *entitlementService) ResolveCurrentPlan(ctx context.Context, clientID primitive.ObjectID) (domain.Entitlement, error) {
	ledger, err := s.ledgerRepo.GetByClientID(ctx, clientID)
	if err != nil {
		return domain.Entitlement{}, mapLedgerErr(err)
	}

	// Resolve against today in the billing zone
	result, stale := resolveEntitlement(ledger, s.cal.Today(), s.cal.Location)
	// Best-effort; the resolution stands either way
	if stale {
		s.repairPointer(ctx, clientID, *ledger.CurrentPlanID)
	}

	s.metrics.EntitlementResolved(string(result.Status))
	return result, nil
}

// repairPointer clears currentPlanId only if it still holds the stale value,
// so an unlock that raced with this read is kept.
func (s *entitlementService) repairPointer(ctx context.Context, clientID, stale primitive.ObjectID) {
	log := s.logger.WithFields(logrus.Fields{"clientId": clientID.Hex(), "planId": stale.Hex()})

	cleared, err := s.ledgerRepo.ClearCurrentPlan(ctx, clientID, stale)
	switch {
	case err != nil:
		s.metrics.PointerRepair("failed")
		log.WithError(err).Warn("failed to clear stale current plan pointer")
	case !cleared:
		s.metrics.PointerRepair("skipped")
		log.Debug("current plan pointer changed concurrently, repair skipped")
	default:
		s.metrics.PointerRepair("cleared")
		log.Info("cleared stale current plan pointer")
	}
}

// resolveEntitlement applies the resolution rules in priority order. today
// must be a start of day in loc. stale reports that currentPlanId should be
// cleared: it is missing from history or its plan has ended. An ended
// unlocked plan is reported as "previous" on the call that clears it; later
// calls fall through to the history rules.
func resolveEntitlement(ledger *domain.ClientLedger, today time.Time, loc *time.Location) (result domain.Entitlement, stale bool) {
	// An unlocked plan wins while it has not ended
	if ledger.CurrentPlanID != nil {
		plan, ok := ledger.FindPlan(*ledger.CurrentPlanID)
		switch {
		case !ok:
			stale = true
		case !plan.EndsBefore(today, loc):
			p := *plan
			return domain.Entitlement{Status: domain.EntitlementCurrent, Plan: &p, FromHistory: false}, false
		default:
			p := *plan
			return domain.Entitlement{Status: domain.EntitlementPrevious, Plan: &p, FromHistory: true}, true
		}
	}

	if len(ledger.PlanHistory) == 0 {
		return domain.NoEntitlement(), stale
	}

	// Sort a copy; the ledger's history order is append order
	history := make([]domain.PlanAssignment, len(ledger.PlanHistory))
	copy(history, ledger.PlanHistory)

	// Earliest start first: the next or ongoing assignment.
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].PlanStartDate.Before(history[j].PlanStartDate)
	})
	for _, p := range history {
		if !p.EndsBefore(today, loc) {
			return domain.Entitlement{Status: domain.EntitlementFuture, Plan: &p, FromHistory: true}, stale
		}
	}

	// Latest end first: the most recently finished assignment.
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].PlanEndDate.After(history[j].PlanEndDate)
	})
	for _, p := range history {
		if p.EndsBefore(today, loc) {
			return domain.Entitlement{Status: domain.EntitlementPrevious, Plan: &p, FromHistory: true}, stale
		}
	}

	return domain.NoEntitlement(), stale
}
