// Command ledger-scheduler runs monthly invoicing and the overdue sweep on a
// cron schedule, or once for a backfill.
package main

import (
	"alcyxob/fitness-billing/internal/bootstrap"
	"alcyxob/fitness-billing/internal/config"
	"alcyxob/fitness-billing/internal/domain"
	"alcyxob/fitness-billing/internal/lock"
	"alcyxob/fitness-billing/internal/logging"
	"alcyxob/fitness-billing/internal/scheduler"
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", ".", "Directory containing config.yaml")
	runOnce    = flag.Bool("run-once", false, "Run invoicing and the overdue sweep once, then exit")
	monthFlag  = flag.String("month", "", "Month to invoice with -run-once (YYYY-MM). Defaults to the previous month")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logging.New(config.LogConfig{}, os.Stderr).WithError(err).Fatal("Could not load config")
	}
	logger := logging.New(cfg.Log, os.Stdout).WithField("component", "scheduler")

	ctx := context.Background()

	stores, err := bootstrap.OpenStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Could not open ledger store")
	}
	defer stores.Close()

	fileStorage, err := bootstrap.NewFileStorage(ctx, cfg.S3, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize S3 storage")
	}
	// Metrics are not scraped from this process.
	svc, err := bootstrap.NewServices(cfg, stores, fileStorage, logger, nil)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}

	var locker lock.Locker = lock.Noop{}
	if cfg.Redis.URL != "" {
		redisLocker, err := lock.NewRedisLocker(ctx, cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to redis")
		}
		defer redisLocker.Close()
		locker = redisLocker
	} else {
		logger.Warn("redis.url not set, run lock disabled; run a single scheduler replica")
	}

	runner := scheduler.NewRunner(stores.Ledgers, svc.Invoices, locker, cfg.Scheduler.LockTTL, svc.Calendar, logger, nil)

	if *runOnce {
		month := scheduler.PreviousMonth(svc.Calendar.Now(), svc.Calendar.Location)
		if *monthFlag != "" {
			month, err = domain.ParseMonth(*monthFlag, svc.Calendar.Location)
			if err != nil {
				logger.WithError(err).Fatal("Invalid -month")
			}
		}
		summary, err := runner.RunMonthlyInvoicing(ctx, month)
		if err != nil {
			logger.WithError(err).Fatal("Invoicing run failed")
		}
		overdue, err := runner.RunOverdueSweep(ctx)
		if err != nil {
			logger.WithError(err).Fatal("Overdue sweep failed")
		}
		logger.WithFields(logrus.Fields{
			"month":     summary.Month.Format("2006-01"),
			"generated": summary.Generated,
			"failed":    summary.Failed,
			"skipped":   summary.Skipped,
			"overdue":   overdue,
		}).Info("One-off run completed")
		return
	}

	c := cron.New(cron.WithLocation(svc.Calendar.Location))
	if err := runner.Register(c, cfg.Scheduler.InvoiceSchedule, cfg.Scheduler.OverdueSchedule); err != nil {
		logger.WithError(err).Fatal("Failed to schedule jobs")
	}
	c.Start()
	logger.WithFields(logrus.Fields{
		"invoiceSchedule": cfg.Scheduler.InvoiceSchedule,
		"overdueSchedule": cfg.Scheduler.OverdueSchedule,
		"timezone":        svc.Calendar.Location.String(),
	}).Info("Ledger scheduler started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("Shutting down gracefully...")

	stopCtx := c.Stop()
	<-stopCtx.Done()
	logger.Info("Scheduler stopped")
}
