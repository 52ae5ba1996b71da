// Package scheduler runs the periodic billing jobs: monthly invoicing for
// every ledger and the overdue sweep.
package scheduler

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/lock"
	"alcyxob/fitness-billing/internal/metrics"
	"alcyxob/fitness-billing/internal/service"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	jobInvoices = "invoices"
	jobOverdue  = "overdue"
)

// ClientLister enumerates every client that has a ledger.
type ClientLister interface {
	ListClientIDs(ctx context.Context) ([]primitive.ObjectID, error)
}

// RunSummary reports one invoicing run.
type RunSummary struct {
	Month     time.Time
	Clients   int
	Generated int
	Failed    int
	// Skipped is set when another replica held the run lock.
	Skipped bool
}

type Runner struct {
	clients        ClientLister
	invoiceService service.InvoiceService
	locker         lock.Locker
	lockTTL        time.Duration
	cal            service.Calendar
	logger         logrus.FieldLogger
	metrics        *metrics.Metrics
}

func NewRunner(
	clients ClientLister,
	invoiceService service.InvoiceService,
	locker lock.Locker,
	lockTTL time.Duration,
	cal service.Calendar,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) *Runner {
	if locker == nil {
		locker = lock.Noop{}
	}
	return &Runner{
		clients:        clients,
		invoiceService: invoiceService,
		locker:         locker,
		lockTTL:        lockTTL,
		cal:            cal,
		logger:         logger,
		metrics:        m,
	}
}

// PreviousMonth returns the first instant of the month before now's month.
func PreviousMonth(now time.Time, loc *time.Location) time.Time {
	start, _ := domain.MonthBounds(now, loc)
	return start.AddDate(0, -1, 0)
}

// RunMonthlyInvoicing generates month's invoice for every ledger. A failure
// for one client is logged and counted; the run carries on with the rest.
func (r *Runner) RunMonthlyInvoicing(ctx context.Context, month time.Time) (*RunSummary, error) {
	if err := domain.ValidateMonth(month); err != nil {
		return nil, err
	}
	month, _ = domain.MonthBounds(month, r.cal.Location)
	summary := &RunSummary{Month: month}
	log := r.logger.WithFields(logrus.Fields{"job": jobInvoices, "month": month.Format("2006-01")})

	held, err := r.locker.Acquire(ctx, jobInvoices+":"+month.Format("2006-01"), r.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		log.Info("invoicing run already in progress elsewhere, skipping")
		r.metrics.SchedulerRun(jobInvoices, "skipped")
		summary.Skipped = true
		return summary, nil
	}
	if err != nil {
		r.metrics.SchedulerRun(jobInvoices, "failed")
		return nil, fmt.Errorf("acquire invoicing lock: %w", err)
	}
	defer r.release(held, log)

	ids, err := r.clients.ListClientIDs(ctx)
	if err != nil {
		r.metrics.SchedulerRun(jobInvoices, "failed")
		return nil, fmt.Errorf("list ledgers: %w", err)
	}
	summary.Clients = len(ids)

	for _, clientID := range ids {
		if err := ctx.Err(); err != nil {
			r.metrics.SchedulerRun(jobInvoices, "failed")
			return summary, err
		}
		if _, err := r.invoiceService.GenerateMonthlyInvoice(ctx, clientID, month); err != nil {
			summary.Failed++
			log.WithError(err).WithField("clientId", clientID.Hex()).Error("failed to generate invoice")
			continue
		}
		summary.Generated++
	}

	outcome := "ok"
	if summary.Failed > 0 {
		outcome = "partial"
	}
	r.metrics.SchedulerRun(jobInvoices, outcome)
	log.WithFields(logrus.Fields{
		"clients":   summary.Clients,
		"generated": summary.Generated,
		"failed":    summary.Failed,
	}).Info("invoicing run finished")
	return summary, nil
}

// RunOverdueSweep flips unpaid invoices past their due date to OVERDUE.
func (r *Runner) RunOverdueSweep(ctx context.Context) (int64, error) {
	log := r.logger.WithField("job", jobOverdue)

	held, err := r.locker.Acquire(ctx, jobOverdue, r.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		log.Info("overdue sweep already in progress elsewhere, skipping")
		r.metrics.SchedulerRun(jobOverdue, "skipped")
		return 0, nil
	}
	if err != nil {
		r.metrics.SchedulerRun(jobOverdue, "failed")
		return 0, fmt.Errorf("acquire overdue lock: %w", err)
	}
	defer r.release(held, log)

	n, err := r.invoiceService.MarkOverdueInvoices(ctx)
	if err != nil {
		r.metrics.SchedulerRun(jobOverdue, "failed")
		return 0, err
	}
	r.metrics.SchedulerRun(jobOverdue, "ok")
	return n, nil
}

func (r *Runner) release(held lock.Lock, log logrus.FieldLogger) {
	// The run context may already be cancelled; release regardless.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := held.Release(ctx); err != nil {
		log.WithError(err).Warn("failed to release run lock")
	}
}

// Register adds both jobs to c. Invoicing always bills the month before the
// one the job fires in.
func (r *Runner) Register(c *cron.Cron, invoiceSpec, overdueSpec string) error {
	_, err := c.AddFunc(invoiceSpec, func() {
		month := PreviousMonth(r.cal.Now(), r.cal.Location)
		if _, err := r.RunMonthlyInvoicing(context.Background(), month); err != nil {
			r.logger.WithError(err).Error("scheduled invoicing run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule invoicing %q: %w", invoiceSpec, err)
	}

	_, err = c.AddFunc(overdueSpec, func() {
		if _, err := r.RunOverdueSweep(context.Background()); err != nil {
			r.logger.WithError(err).Error("scheduled overdue sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule overdue sweep %q: %w", overdueSpec, err)
	}
	return nil
}
