package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	S3        S3Config        `mapstructure:"s3"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// DatabaseConfig selects and configures the ledger store.
// Driver is either "mongo" (production) or "sqlite" (single node / local dev).
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	URI        string `mapstructure:"uri"`
	Name       string `mapstructure:"name"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Enabled reports whether statement archiving has somewhere to write to.
func (c S3Config) Enabled() bool {
	return c.BucketName != ""
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// BillingConfig controls calendar and pricing behaviour of the ledger.
type BillingConfig struct {
	// Timezone is the IANA name of the "local calendar" used for plan
	// windows and invoice months. "Local" uses the server's zone.
	Timezone       string  `mapstructure:"timezone"`
	WeeklyPlanCost float64 `mapstructure:"weekly_plan_cost"`
}

// Location resolves Timezone into a *time.Location.
func (c BillingConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid billing.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// RedisConfig is used by the scheduler run lock. An empty URL disables locking.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type SchedulerConfig struct {
	InvoiceSchedule string        `mapstructure:"invoice_schedule"`
	OverdueSchedule string        `mapstructure:"overdue_schedule"`
	LockTTL         time.Duration `mapstructure:"lock_ttl"`
}

type CatalogConfig struct {
	CacheSize int           `mapstructure:"cache_size"`
	CacheTTL  time.Duration `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS, billing.timezone -> BILLING_TIMEZONE
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	v.SetDefault("server.address", ":8080")
	v.SetDefault("database.driver", "mongo")
	// Invoice payment uses transactions, which need a replica set.
	v.SetDefault("database.uri", "mongodb://localhost:27017/?replicaSet=rs0")
	v.SetDefault("database.name", "fitness_billing")
	v.SetDefault("database.sqlite_path", "fitness_billing.db")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access_key_id", "")
	v.SetDefault("s3.secret_access_key", "")
	v.SetDefault("s3.bucket_name", "")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("billing.timezone", "Local")
	v.SetDefault("billing.weekly_plan_cost", 0)
	v.SetDefault("redis.url", "")
	v.SetDefault("scheduler.invoice_schedule", "15 0 1 * *")
	v.SetDefault("scheduler.overdue_schedule", "30 0 * * *")
	v.SetDefault("scheduler.lock_ttl", "10m")
	v.SetDefault("catalog.cache_size", 256)
	v.SetDefault("catalog.cache_ttl", "10m")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("metrics.enabled", true)

	err = v.ReadInConfig()
	// A missing file is fine, everything can come from env vars.
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}

	switch config.Database.Driver {
	case "mongo", "sqlite":
	default:
		return config, fmt.Errorf("unsupported database.driver %q", config.Database.Driver)
	}

	return config, nil
}
