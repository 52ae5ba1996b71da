// Package bootstrap wires configuration into stores and services. Both the
// API server and the scheduler start from here.
package bootstrap

import (
	"alcyxob/fitness-billing/internal/config"
	"alcyxob/fitness-billing/internal/metrics"
	"alcyxob/fitness-billing/internal/repository"
	"alcyxob/fitness-billing/internal/repository/mongo"
	"alcyxob/fitness-billing/internal/repository/sqlite"
	"alcyxob/fitness-billing/internal/service"
	"alcyxob/fitness-billing/internal/storage"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Stores is the repository set for the configured driver.
type Stores struct {
	Ledgers  repository.LedgerRepository
	Invoices repository.InvoiceRepository
	Plans    repository.TrainingPlanRepository
	Workouts repository.WorkoutRepository
	Tx       repository.Transactor

	close func() error
}

func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores connects to the database named by cfg.Driver and makes sure
// its schema or indexes are in place.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, logger logrus.FieldLogger) (*Stores, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %q: %w", cfg.SQLitePath, err)
		}
		catalog := sqlite.NewCatalogRepository(db)
		logger.WithField("path", cfg.SQLitePath).Info("Using SQLite ledger store")
		return &Stores{
			Ledgers:  sqlite.NewLedgerRepository(db),
			Invoices: sqlite.NewInvoiceRepository(db),
			Plans:    catalog,
			Workouts: catalog,
			Tx:       db,
			close:    db.Close,
		}, nil

	case "mongo":
		client, err := mongo.ConnectDB(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		appDB := client.Database(cfg.Name)

		// Fail at startup rather than on the first invoice payment
		checkCtx, checkCancel := context.WithTimeout(ctx, 10*time.Second)
		err = mongo.CheckTransactions(checkCtx, client)
		checkCancel()
		if err != nil {
			_ = mongo.DisconnectDB(client)
			return nil, fmt.Errorf("check mongo topology: %w", err)
		}

		indexCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := mongo.EnsureIndexes(indexCtx, appDB); err != nil {
			_ = mongo.DisconnectDB(client)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.WithField("database", cfg.Name).Info("Using MongoDB ledger store")
		return &Stores{
			Ledgers:  mongo.NewMongoLedgerRepository(appDB),
			Invoices: mongo.NewMongoInvoiceRepository(appDB),
			Plans:    mongo.NewMongoTrainingPlanRepository(appDB),
			Workouts: mongo.NewMongoWorkoutRepository(appDB),
			Tx:       mongo.NewTransactor(client),
			close:    func() error { return mongo.DisconnectDB(client) },
		}, nil
	}
	return nil, fmt.Errorf("unsupported database.driver %q", cfg.Driver)
}

// NewMetrics returns nil collectors and a nil handler when metrics are off.
func NewMetrics(cfg config.MetricsConfig) (*metrics.Metrics, http.Handler) {
	if !cfg.Enabled {
		return nil, nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg), promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// NewFileStorage returns nil when no bucket is configured; statements are
// then not archived.
func NewFileStorage(ctx context.Context, cfg config.S3Config, logger logrus.FieldLogger) (storage.FileStorage, error) {
	if !cfg.Enabled() {
		logger.Info("S3 bucket not configured, statement archiving disabled")
		return nil, nil
	}
	return storage.NewS3Storage(ctx, cfg, logger)
}

// Services is the full service graph.
type Services struct {
	Calendar     service.Calendar
	Ledger       service.LedgerService
	Entitlements service.EntitlementService
	Invoices     service.InvoiceService
	Catalog      service.PlanCatalog
}

func NewServices(
	cfg config.Config,
	stores *Stores,
	files storage.FileStorage,
	logger logrus.FieldLogger,
	m *metrics.Metrics,
) (*Services, error) {
	loc, err := cfg.Billing.Location()
	if err != nil {
		return nil, err
	}
	cal := service.NewCalendar(loc)

	ledgerSvc := service.NewLedgerService(stores.Ledgers, stores.Tx, cal, logger, m)
	return &Services{
		Calendar:     cal,
		Ledger:       ledgerSvc,
		Entitlements: service.NewEntitlementService(stores.Ledgers, cal, logger, m),
		Invoices:     service.NewInvoiceService(stores.Invoices, stores.Ledgers, ledgerSvc, stores.Tx, files, cal, logger, m),
		Catalog:      service.NewPlanCatalog(stores.Plans, stores.Workouts, cfg.Catalog.CacheSize, cfg.Catalog.CacheTTL),
	}, nil
}
