package service

import (
	"alcyxob/fitness-billing/internal/domain"
	"errors"
	"fmt"
)

// --- Error Definitions ---
var (
	// ErrNotFound is wrapped by every "record is absent" error below, so
	// callers can test for the whole family with errors.Is.
	ErrNotFound        = errors.New("not found")
	ErrLedgerNotFound  = fmt.Errorf("client ledger %w", ErrNotFound)
	ErrInvoiceNotFound = fmt.Errorf("invoice %w", ErrNotFound)
	ErrPlanNotFound    = fmt.Errorf("training plan %w", ErrNotFound)

	ErrInvalidDate  = domain.ErrInvalidDate
	ErrInvalidInput = errors.New("invalid input")

	ErrInvoiceAlreadyPaid   = errors.New("invoice is already paid")
	ErrPlanNotInHistory     = errors.New("plan is not in the client's plan history")
	ErrStatementUnavailable = errors.New("statement is not available for this invoice")
)
