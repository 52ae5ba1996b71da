package scheduler

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/lock"
	"alcyxob/fitness-billing/internal/metrics"
	"alcyxob/fitness-billing/internal/repository"
	"alcyxob/fitness-billing/internal/repository/sqlite"
	"alcyxob/fitness-billing/internal/service"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fixture struct {
	ledgers    repository.LedgerRepository
	invoices   repository.InvoiceRepository
	ledgerSvc  service.LedgerService
	invoiceSvc service.InvoiceService
	cal        service.Calendar
	metrics    *metrics.Metrics
	hook       *test.Hook
	runner     *Runner
}

func newFixture(t *testing.T, now time.Time, locker lock.Locker) *fixture {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, hook := test.NewNullLogger()
	f := &fixture{
		ledgers:  sqlite.NewLedgerRepository(db),
		invoices: sqlite.NewInvoiceRepository(db),
		cal:      service.Calendar{Location: time.UTC, Now: func() time.Time { return now }},
		metrics:  metrics.New(prometheus.NewRegistry()),
		hook:     hook,
	}
	f.ledgerSvc = service.NewLedgerService(f.ledgers, db, f.cal, logger, f.metrics)
	f.invoiceSvc = service.NewInvoiceService(f.invoices, f.ledgers, f.ledgerSvc, db, nil, f.cal, logger, f.metrics)
	f.runner = NewRunner(f.ledgers, f.invoiceSvc, locker, time.Minute, f.cal, logger, f.metrics)
	return f
}

func (f *fixture) client(t *testing.T, charges ...domain.LedgerEntry) primitive.ObjectID {
	t.Helper()
	ctx := context.Background()
	id := primitive.NewObjectID()
	_, err := f.ledgerSvc.OpenLedger(ctx, id)
	require.NoError(t, err)
	for _, e := range charges {
		require.NoError(t, f.ledgerSvc.AppendCharge(ctx, id, e))
	}
	return id
}

func penalty(d time.Time, amount int64) domain.LedgerEntry {
	return domain.LedgerEntry{Date: d, Amount: decimal.NewFromInt(amount), Reason: domain.ReasonMissedWorkout}
}

func TestPreviousMonth(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.December, 1, 0, 0, 0, 0, time.UTC),
		PreviousMonth(time.Date(2025, time.January, 1, 0, 15, 0, 0, time.UTC), time.UTC))
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC),
		PreviousMonth(time.Date(2025, time.March, 31, 23, 0, 0, 0, time.UTC), time.UTC))

	// 23:30 UTC on Jan 31 is already February in Berlin.
	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, berlin),
		PreviousMonth(time.Date(2025, time.January, 31, 23, 30, 0, 0, time.UTC), berlin))
}

func TestRunMonthlyInvoicing(t *testing.T) {
	now := time.Date(2025, time.February, 1, 0, 15, 0, 0, time.UTC)
	f := newFixture(t, now, nil)
	ctx := context.Background()

	a := f.client(t, penalty(time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC), 10))
	b := f.client(t)

	summary, err := f.runner.RunMonthlyInvoicing(ctx, PreviousMonth(now, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Clients)
	assert.Equal(t, 2, summary.Generated)
	assert.Zero(t, summary.Failed)
	assert.False(t, summary.Skipped)

	invA, err := f.invoices.GetByClientAndMonth(ctx, a, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, invA.TotalBalance.Equal(decimal.NewFromInt(10)))

	invB, err := f.invoices.GetByClientAndMonth(ctx, b, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, invB.TotalBalance.IsZero())

	// A second run is a no-op per client.
	_, err = f.runner.RunMonthlyInvoicing(ctx, time.Date(2025, time.January, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	list, err := f.invoices.ListByClient(ctx, a)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.SchedulerRuns.WithLabelValues("invoices", "ok")))
}

func TestRunMonthlyInvoicing_RejectsZeroMonth(t *testing.T) {
	f := newFixture(t, time.Now(), nil)
	_, err := f.runner.RunMonthlyInvoicing(context.Background(), time.Time{})
	assert.ErrorIs(t, err, domain.ErrInvalidDate)
}

type failingFor struct {
	service.InvoiceService
	bad primitive.ObjectID
}

func (s failingFor) GenerateMonthlyInvoice(ctx context.Context, clientID primitive.ObjectID, month time.Time) (*domain.MonthlyInvoice, error) {
	if clientID == s.bad {
		return nil, errors.New("store unavailable")
	}
	return s.InvoiceService.GenerateMonthlyInvoice(ctx, clientID, month)
}

func TestRunMonthlyInvoicing_ContinuesAfterClientFailure(t *testing.T) {
	now := time.Date(2025, time.February, 1, 0, 15, 0, 0, time.UTC)
	f := newFixture(t, now, nil)

	bad := f.client(t)
	good := f.client(t)
	logger, hook := test.NewNullLogger()
	runner := NewRunner(f.ledgers, failingFor{InvoiceService: f.invoiceSvc, bad: bad}, nil, time.Minute, f.cal, logger, f.metrics)

	summary, err := runner.RunMonthlyInvoicing(context.Background(), PreviousMonth(now, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Generated)
	assert.Equal(t, 1, summary.Failed)

	_, err = f.invoices.GetByClientAndMonth(context.Background(), good, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	assert.NoError(t, err)

	var failures int
	for _, e := range hook.AllEntries() {
		if e.Message == "failed to generate invoice" {
			failures++
			assert.Equal(t, bad.Hex(), e.Data["clientId"])
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SchedulerRuns.WithLabelValues("invoices", "partial")))
}

func TestRunMonthlyInvoicing_SkipsWhenLockHeld(t *testing.T) {
	mr := miniredis.RunT(t)
	locker, err := lock.NewRedisLocker(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { locker.Close() })

	now := time.Date(2025, time.February, 1, 0, 15, 0, 0, time.UTC)
	f := newFixture(t, now, locker)
	f.client(t)

	held, err := locker.Acquire(context.Background(), "invoices:2025-01", time.Minute)
	require.NoError(t, err)

	summary, err := f.runner.RunMonthlyInvoicing(context.Background(), PreviousMonth(now, time.UTC))
	require.NoError(t, err)
	assert.True(t, summary.Skipped)
	assert.Zero(t, summary.Generated)

	require.NoError(t, held.Release(context.Background()))
	summary, err = f.runner.RunMonthlyInvoicing(context.Background(), PreviousMonth(now, time.UTC))
	require.NoError(t, err)
	assert.False(t, summary.Skipped)
	assert.Equal(t, 1, summary.Generated)

	// The run released its own lock.
	assert.False(t, mr.Exists("fitness-billing:lock:invoices:2025-01"))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SchedulerRuns.WithLabelValues("invoices", "skipped")))
}

func TestRunOverdueSweep(t *testing.T) {
	now := time.Date(2025, time.March, 2, 0, 30, 0, 0, time.UTC)
	f := newFixture(t, now, nil)
	ctx := context.Background()

	id := f.client(t, penalty(time.Date(2025, time.January, 9, 0, 0, 0, 0, time.UTC), 7))
	jan, err := f.invoiceSvc.GenerateMonthlyInvoice(ctx, id, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	// March is still running, so its invoice is not yet due.
	mar, err := f.invoiceSvc.GenerateMonthlyInvoice(ctx, id, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	n, err := f.runner.RunOverdueSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.invoiceSvc.GetInvoice(ctx, jan.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceOverdue, got.Status)

	got, err = f.invoiceSvc.GetInvoice(ctx, mar.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceUnpaid, got.Status)
}

func TestRegister(t *testing.T) {
	f := newFixture(t, time.Now(), nil)
	c := cron.New()

	require.NoError(t, f.runner.Register(c, "15 0 1 * *", "30 0 * * *"))
	assert.Len(t, c.Entries(), 2)

	assert.Error(t, f.runner.Register(cron.New(), "not a schedule", "30 0 * * *"))
}
