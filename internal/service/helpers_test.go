package service

import (
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/metrics"
	"alcyxob/fitness-billing/internal/repository"
	"alcyxob/fitness-billing/internal/repository/sqlite"
	"alcyxob/fitness-billing/internal/storage"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testEnv struct {
	db       *sqlite.DB
	ledgers  repository.LedgerRepository
	invoices repository.InvoiceRepository
	now      time.Time
	cal      Calendar
	logs     *test.Hook
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	files    *memFiles

	ledgerSvc      LedgerService
	entitlementSvc EntitlementService
	invoiceSvc     InvoiceService
}

// newTestEnv wires the services on an in-memory database with a frozen clock
// at now, evaluated in loc.
func newTestEnv(t *testing.T, now time.Time, loc *time.Location) *testEnv {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	env := &testEnv{
		db:       db,
		ledgers:  sqlite.NewLedgerRepository(db),
		invoices: sqlite.NewInvoiceRepository(db),
		now:      now,
		logs:     hook,
		logger:   logger,
		metrics:  metrics.New(prometheus.NewRegistry()),
		files:    &memFiles{objects: map[string][]byte{}},
	}
	env.cal = Calendar{Location: loc, Now: func() time.Time { return env.now }}
	env.rewire()
	return env
}

// rewire rebuilds the services after a repository or dependency was swapped.
func (e *testEnv) rewire() {
	e.ledgerSvc = NewLedgerService(e.ledgers, e.db, e.cal, e.logger, e.metrics)
	e.entitlementSvc = NewEntitlementService(e.ledgers, e.cal, e.logger, e.metrics)
	var files storage.FileStorage
	if e.files != nil {
		files = e.files
	}
	e.invoiceSvc = NewInvoiceService(e.invoices, e.ledgers, e.ledgerSvc, e.db, files, e.cal, e.logger, e.metrics)
}

func (e *testEnv) openLedger(t *testing.T) primitive.ObjectID {
	t.Helper()
	clientID := primitive.NewObjectID()
	_, err := e.ledgerSvc.OpenLedger(context.Background(), clientID)
	require.NoError(t, err)
	return clientID
}

func (e *testEnv) charge(t *testing.T, clientID primitive.ObjectID, date time.Time, amount string, reason domain.ChargeReason) {
	t.Helper()
	err := e.ledgerSvc.AppendCharge(context.Background(), clientID, domain.LedgerEntry{
		Date:   date,
		Amount: decimal.RequireFromString(amount),
		Reason: reason,
	})
	require.NoError(t, err)
}

func (e *testEnv) warnings() []string {
	var msgs []string
	for _, entry := range e.logs.AllEntries() {
		if entry.Level == logrus.WarnLevel {
			msgs = append(msgs, entry.Message)
		}
	}
	return msgs
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(year int, month time.Month, d int, loc *time.Location) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, loc)
}

// memFiles is an in-memory statement store.
type memFiles struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func (m *memFiles) PutObject(_ context.Context, key, _ string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.objects[key] = body
	return nil
}

func (m *memFiles) GeneratePresignedDownloadURL(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return "", errors.New("no such key")
	}
	return "https://files.test/" + key + "?signed=1", nil
}

func (m *memFiles) DeleteObject(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
