package service

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/metrics"
	"alcyxob/fitness-billing/internal/repository"
	"alcyxob/fitness-billing/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Generation attempts: the first try plus one re-read after losing a
// uniqueness race.
const maxGenerateAttempts = 2

const monthKeyLayout = "2006-01"

// InvoiceService generates monthly invoices and drives their payment state.
type InvoiceService interface {
	// GenerateMonthlyInvoice is idempotent per (client, month): an existing
	// invoice is returned unchanged, never recomputed.
	GenerateMonthlyInvoice(ctx context.Context, clientID primitive.ObjectID, month time.Time) (*domain.MonthlyInvoice, error)
	// MarkInvoiceAsPaid marks the invoice paid and clears the client's
	// running balance atomically.
	MarkInvoiceAsPaid(ctx context.Context, invoiceID primitive.ObjectID) (*domain.MonthlyInvoice, error)
	GetInvoice(ctx context.Context, invoiceID primitive.ObjectID) (*domain.MonthlyInvoice, error)
	ListClientInvoices(ctx context.Context, clientID primitive.ObjectID) ([]domain.MonthlyInvoice, error)
	MarkOverdueInvoices(ctx context.Context) (int64, error)
	// GetStatementURL returns a presigned download URL for the archived
	// statement of one of the client's invoices.
	GetStatementURL(ctx context.Context, clientID, invoiceID primitive.ObjectID) (string, error)
}

// Statement is the archived JSON snapshot of an invoice and the charges it
// was computed from.
type Statement struct {
	Invoice     domain.MonthlyInvoice `json:"invoice"`
	Charges     []domain.LedgerEntry  `json:"charges"`
	GeneratedAt time.Time             `json:"generatedAt"`
}

type invoiceService struct {
	invoiceRepo   repository.InvoiceRepository
	ledgerRepo    repository.LedgerRepository
	ledgerService LedgerService
	tx            repository.Transactor
	files         storage.FileStorage // nil disables statement archiving
	cal           Calendar
	logger        logrus.FieldLogger
	metrics       *metrics.Metrics
}

func NewInvoiceService(
	invoiceRepo repository.InvoiceRepository,
	ledgerRepo repository.LedgerRepository,
	ledgerService LedgerService,
	tx repository.Transactor,
	files storage.FileStorage,
	cal Calendar,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) InvoiceService {
	return &invoiceService{
		invoiceRepo:   invoiceRepo,
		ledgerRepo:    ledgerRepo,
		ledgerService: ledgerService,
		tx:            tx,
		files:         files,
		cal:           cal,
		logger:        logger,
		metrics:       m,
	}
}

func (s *invoiceService) GenerateMonthlyInvoice(ctx context.Context, clientID primitive.ObjectID, month time.Time) (*domain.MonthlyInvoice, error) {
	if err := domain.ValidateMonth(month); err != nil {
		return nil, err
	}
	// Bounds are taken in the billing zone and stored in UTC
	start, end := domain.MonthBounds(month, s.cal.Location)
	log := s.logger.WithFields(logrus.Fields{"clientId": clientID.Hex(), "month": start.Format(monthKeyLayout)})

	for attempt := 1; ; attempt++ {
		// An existing invoice for the month is returned as stored
		existing, err := s.invoiceRepo.GetByClientAndMonth(ctx, clientID, start)
		if err == nil {
			if attempt == 1 {
				s.metrics.InvoiceGenerated("existing")
			} else {
				s.metrics.InvoiceGenerated("conflict")
			}
			return existing, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("look up invoice: %w", err)
		}

		ledger, err := s.ledgerRepo.GetByClientID(ctx, clientID)
		if err != nil {
			return nil, mapLedgerErr(err)
		}

		// Freeze the month's charges into the snapshot
		sum := domain.SummarizeCharges(ledger.ChargeHistory, start, end)
		if !sum.Excluded.IsZero() {
			log.WithField("excluded", sum.Excluded.String()).Warn("charges with unbilled reasons left off the invoice")
		}

		// Times are normalised to what a read returns, so a created and a
		// re-read invoice serialise identically.
		invoice := &domain.MonthlyInvoice{
			ClientID:        clientID,
			Month:           start.UTC(),
			DueDate:         end.UTC(),
			TotalBalance:    sum.Total(),
			PlanCosts:       sum.PlanCosts,
			Penalties:       sum.Penalties,
			ExcludedCharges: sum.Excluded,
			Status:          domain.InvoiceUnpaid,
			CreatedAt:       s.cal.Now().UTC().Truncate(time.Millisecond),
		}

		_, err = s.invoiceRepo.Create(ctx, invoice)
		if err == nil {
			s.metrics.InvoiceGenerated("created")
			log.WithFields(logrus.Fields{
				"invoiceId": invoice.ID.Hex(),
				"total":     invoice.TotalBalance.String(),
			}).Info("monthly invoice generated")
			s.archiveStatement(ctx, invoice, ledger.ChargeHistory, start, end, log)
			return invoice, nil
		}
		// Lost the unique (clientId, month) race: loop and return the winner
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
		if attempt >= maxGenerateAttempts {
			return nil, fmt.Errorf("create invoice: still conflicting after %d attempts: %w", attempt, err)
		}
		log.Info("lost invoice creation race, re-reading the winner")
	}
}

// archiveStatement is best-effort: the invoice is already durable.
func (s *invoiceService) archiveStatement(ctx context.Context, invoice *domain.MonthlyInvoice, entries []domain.LedgerEntry, start, end time.Time, log logrus.FieldLogger) {
	if s.files == nil {
		return
	}

	// Same inclusive window the invoice was summed over
	charges := []domain.LedgerEntry{}
	for _, e := range entries {
		if !e.Date.Before(start) && !e.Date.After(end) {
			charges = append(charges, e)
		}
	}
	// Encode the statement
	body, err := json.Marshal(Statement{Invoice: *invoice, Charges: charges, GeneratedAt: invoice.CreatedAt})
	if err != nil {
		log.WithError(err).Warn("failed to encode statement")
		return
	}

	// Unique key per upload so a retry never overwrites
	key := path.Join("statements", invoice.ClientID.Hex(), start.Format(monthKeyLayout), uuid.NewString()+".json")
	if err := s.files.PutObject(ctx, key, "application/json", body); err != nil {
		log.WithError(err).Warn("failed to upload statement")
		return
	}
	// Don't leave an object nothing points at
	if err := s.invoiceRepo.SetStatementKey(ctx, invoice.ID, key); err != nil {
		log.WithError(err).Warn("failed to record statement key")
		if delErr := s.files.DeleteObject(ctx, key); delErr != nil {
			log.WithError(delErr).Warn("failed to remove orphaned statement")
		}
		return
	}
	invoice.StatementKey = key
}

func (s *invoiceService) MarkInvoiceAsPaid(ctx context.Context, invoiceID primitive.ObjectID) (*domain.MonthlyInvoice, error) {
	// Fast path for the common repeat-payment case; MarkPaid re-checks
	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status == domain.InvoicePaid {
		return nil, ErrInvoiceAlreadyPaid
	}

	// Status flip and balance reset commit together or not at all
	paidAt := s.cal.Now().UTC().Truncate(time.Millisecond)
	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if err := s.invoiceRepo.MarkPaid(ctx, invoiceID, paidAt); err != nil {
			switch {
			case errors.Is(err, repository.ErrConflict):
				return ErrInvoiceAlreadyPaid
			case errors.Is(err, repository.ErrNotFound):
				return ErrInvoiceNotFound
			}
			return err
		}
		return s.ledgerService.ClearBalance(ctx, invoice.ClientID)
	})
	if err != nil {
		return nil, err
	}

	// Reflect the committed state without a re-read
	invoice.Status = domain.InvoicePaid
	invoice.PaidAt = &paidAt

	s.metrics.InvoicePaid()
	s.logger.WithFields(logrus.Fields{
		"invoiceId": invoiceID.Hex(),
		"clientId":  invoice.ClientID.Hex(),
	}).Info("invoice paid, balance cleared")
	return invoice, nil
}

func (s *invoiceService) GetInvoice(ctx context.Context, invoiceID primitive.ObjectID) (*domain.MonthlyInvoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return invoice, nil
}

func (s *invoiceService) ListClientInvoices(ctx context.Context, clientID primitive.ObjectID) ([]domain.MonthlyInvoice, error) {
	return s.invoiceRepo.ListByClient(ctx, clientID)
}

func (s *invoiceService) MarkOverdueInvoices(ctx context.Context) (int64, error) {
	n, err := s.invoiceRepo.MarkOverdue(ctx, s.cal.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.metrics.InvoicesMarkedOverdue(n)
		s.logger.WithField("count", n).Info("invoices marked overdue")
	}
	return n, nil
}

func (s *invoiceService) GetStatementURL(ctx context.Context, clientID, invoiceID primitive.ObjectID) (string, error) {
	invoice, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	// Someone else's invoice looks the same as a missing one.
	if invoice.ClientID != clientID {
		return "", ErrInvoiceNotFound
	}
	if s.files == nil || invoice.StatementKey == "" {
		return "", ErrStatementUnavailable
	}
	return s.files.GeneratePresignedDownloadURL(ctx, invoice.StatementKey, storage.DefaultPresignedURLExpiry)
}
