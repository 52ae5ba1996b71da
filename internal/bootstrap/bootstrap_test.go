package bootstrap

import (
	"alcyxob/fitness-billing/internal/config"
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestOpenStores_SQLite(t *testing.T) {
	logger, _ := test.NewNullLogger()
	cfg := config.Config{
		Database: config.DatabaseConfig{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "ledger.db")},
		Billing:  config.BillingConfig{Timezone: "UTC"},
		Catalog:  config.CatalogConfig{CacheSize: 8},
	}

	stores, err := OpenStores(context.Background(), cfg.Database, logger)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	files, err := NewFileStorage(context.Background(), cfg.S3, logger)
	require.NoError(t, err)
	assert.Nil(t, files)

	m, handler := NewMetrics(config.MetricsConfig{Enabled: false})
	assert.Nil(t, m)
	assert.Nil(t, handler)

	svc, err := NewServices(cfg, stores, files, logger, m)
	require.NoError(t, err)
	assert.Equal(t, "UTC", svc.Calendar.Location.String())

	clientID := primitive.NewObjectID()
	ledger, err := svc.Ledger.OpenLedger(context.Background(), clientID)
	require.NoError(t, err)
	assert.Equal(t, clientID, ledger.ClientID)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := OpenStores(context.Background(), config.DatabaseConfig{Driver: "cassandra"}, logger)
	assert.Error(t, err)
}

func TestNewServices_BadTimezone(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewServices(config.Config{Billing: config.BillingConfig{Timezone: "Mars/Olympus"}}, &Stores{}, nil, logger, nil)
	assert.Error(t, err)
}

func TestNewMetrics_Enabled(t *testing.T) {
	m, handler := NewMetrics(config.MetricsConfig{Enabled: true})
	assert.NotNil(t, m)
	assert.NotNil(t, handler)
}
