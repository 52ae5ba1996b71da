package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "mongo", cfg.Database.Driver)
	assert.Equal(t, "fitness_billing", cfg.Database.Name)
	assert.Equal(t, "mongodb://localhost:27017/?replicaSet=rs0", cfg.Database.URI)
	assert.Equal(t, "15 0 1 * *", cfg.Scheduler.InvoiceSchedule)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.LockTTL)
	assert.Equal(t, 256, cfg.Catalog.CacheSize)
	assert.Equal(t, 10*time.Minute, cfg.Catalog.CacheTTL)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.S3.Enabled())
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := `
database:
  driver: sqlite
  sqlite_path: /tmp/ledger.db
billing:
  timezone: Europe/Berlin
  weekly_plan_cost: 12.5
scheduler:
  lock_ttl: 90s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("SERVER_ADDRESS", ":9999")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.Address)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/ledger.db", cfg.Database.SQLitePath)
	assert.Equal(t, 12.5, cfg.Billing.WeeklyPlanCost)
	assert.Equal(t, 90*time.Second, cfg.Scheduler.LockTTL)

	loc, err := cfg.Billing.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "cassandra")

	_, err := LoadConfig(t.TempDir())
	assert.Error(t, err)
}

func TestBillingConfig_Location(t *testing.T) {
	loc, err := BillingConfig{Timezone: "local"}.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	_, err = BillingConfig{Timezone: "Mars/Olympus"}.Location()
	assert.Error(t, err)
}
