package api

import (
	"alcyxob/fitness-billing/internal/domain"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// --- Request DTOs ---

type InvoiceMonthRequest struct {
	Month string `json:"month" binding:"required"` // "2025-01"
}

type ChargeRequest struct {
	Date   string          `json:"date" binding:"required"` // "2025-01-15" or RFC 3339
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" binding:"required"`
}

type PlanAssignmentRequest struct {
	PlanID        string `json:"planId" binding:"required"`
	PlanStartDate string `json:"planStartDate" binding:"required"`
	PlanEndDate   string `json:"planEndDate" binding:"required"`
	// WeeklyCost overrides billing.weekly_plan_cost when set.
	WeeklyCost *decimal.Decimal `json:"weeklyCost,omitempty"`
}

// --- Response DTOs ---

type PlanResponse struct {
	Status      domain.EntitlementStatus `json:"status"`
	Plan        *domain.PlanAssignment   `json:"plan"`
	FromHistory bool                     `json:"fromHistory"`
	Summary     *domain.PlanSummary      `json:"summary,omitempty"`
}

type LedgerResponse struct {
	ClientID         string                  `json:"clientId"`
	CurrentPlanID    *string                 `json:"currentPlanId,omitempty"`
	Balance          decimal.Decimal         `json:"balance"`
	MonthlyBalance   decimal.Decimal         `json:"monthlyBalance"`
	LastBalanceReset *time.Time              `json:"lastBalanceReset,omitempty"`
	BilledEntries    int                     `json:"billedEntries"`
	PlanHistory      []domain.PlanAssignment `json:"planHistory"`
	ChargeHistory    []domain.LedgerEntry    `json:"chargeHistory"`
}

type StatementURLResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expiresInSeconds"`
}

func MapLedgerToResponse(l *domain.ClientLedger) LedgerResponse {
	resp := LedgerResponse{
		ClientID:         l.ClientID.Hex(),
		Balance:          l.Balance,
		MonthlyBalance:   l.MonthlyBalance,
		LastBalanceReset: l.LastBalanceReset,
		BilledEntries:    l.BilledEntries,
		PlanHistory:      l.PlanHistory,
		ChargeHistory:    l.ChargeHistory,
	}
	if l.CurrentPlanID != nil {
		hex := l.CurrentPlanID.Hex()
		resp.CurrentPlanID = &hex
	}
	// Empty arrays, not null.
	if resp.PlanHistory == nil {
		resp.PlanHistory = []domain.PlanAssignment{}
	}
	if resp.ChargeHistory == nil {
		resp.ChargeHistory = []domain.LedgerEntry{}
	}
	return resp
}

func MapEntitlementToResponse(e domain.Entitlement, summary *domain.PlanSummary) PlanResponse {
	return PlanResponse{
		Status:      e.Status,
		Plan:        e.Plan,
		FromHistory: e.FromHistory,
		Summary:     summary,
	}
}

var dayLayouts = []string{"2006-01-02", time.RFC3339Nano}

// parseDay reads a calendar date ("2006-01-02", taken in loc) or a full
// RFC 3339 timestamp.
func parseDay(s string, loc *time.Location) (time.Time, error) {
	for _, layout := range dayLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse %q", domain.ErrInvalidDate, s)
}
