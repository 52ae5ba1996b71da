package main

import (
	"alcyxob/fitness-billing/internal/api"
	"alcyxob/fitness-billing/internal/bootstrap"
	"alcyxob/fitness-billing/internal/config"
	"alcyxob/fitness-billing/internal/logging"
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// @title Fitness Billing API
// @version 1.0
// @description Plan entitlements, client ledgers and monthly invoices for fitness trainers.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		// No logger yet; fall back to a default one.
		logging.New(config.LogConfig{}, os.Stderr).WithError(err).Fatal("Could not load config")
	}
	logger := logging.New(cfg.Log, os.Stdout)
	logger.Info("Starting Fitness Billing Server...")

	if cfg.JWT.Secret == "" {
		logger.Fatal("jwt.secret must be set")
	}

	ctx := context.Background()

	// --- Stores ---
	stores, err := bootstrap.OpenStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.WithError(err).Fatal("Could not open ledger store")
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.WithError(err).Error("Failed to close ledger store")
		}
	}()

	// --- Storage & metrics ---
	fileStorage, err := bootstrap.NewFileStorage(ctx, cfg.S3, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize S3 storage")
	}
	m, metricsHandler := bootstrap.NewMetrics(cfg.Metrics)

	// --- Services ---
	svc, err := bootstrap.NewServices(cfg, stores, fileStorage, logger, m)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize services")
	}

	// --- Gin ---
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(logger))

	api.SetupRoutes(router, cfg.JWT.Secret,
		api.NewClientHandler(svc.Entitlements, svc.Catalog, svc.Ledger, svc.Invoices, svc.Calendar.Location, logger),
		api.NewTrainerHandler(svc.Ledger, svc.Entitlements, svc.Invoices, svc.Catalog, svc.Calendar.Location,
			decimal.NewFromFloat(cfg.Billing.WeeklyPlanCost), logger),
		metricsHandler,
	)

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.WithField("address", cfg.Server.Address).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("ListenAndServe error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server exiting.")
}
