// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration loaded from environment variables or config files.
type Config struct {
	AppEnv   string `mapstructure:"APP_ENV" validate:"required,oneof=development staging production test"`
	LogLevel string `mapstructure:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal"`

	DatabaseURL        string        `mapstructure:"DATABASE_URL" validate:"omitempty,url|uri"`
	DBMaxConns         int32         `mapstructure:"DB_MAX_CONNS" validate:"gte=1,lte=1000"`
	DBMinConns         int32         `mapstructure:"DB_MIN_CONNS" validate:"gte=0,ltefield=DBMaxConns"`
	DBMaxConnLifetime  time.Duration `mapstructure:"DB_MAX_CONN_LIFETIME" validate:"required"`
	TxIsolation        string        `mapstructure:"TX_ISOLATION" validate:"required,oneof=read_committed repeatable_read serializable"`
	TxStatementTimeout time.Duration `mapstructure:"TX_STATEMENT_TIMEOUT" validate:"gte=0"`

	CascadeKeepParents bool `mapstructure:"CASCADE_KEEP_PARENTS"`
	CascadeFastPath    bool `mapstructure:"CASCADE_FAST_PATH"`
	CascadeBatchSize   int  `mapstructure:"CASCADE_BATCH_SIZE" validate:"gte=1,lte=10000"`

	AuditEnabled       bool          `mapstructure:"AUDIT_ENABLED"`
	AuditFilter        string        `mapstructure:"AUDIT_FILTER"`
	OutboxEnabled      bool          `mapstructure:"OUTBOX_ENABLED"`
	NotifyChannel      string        `mapstructure:"NOTIFY_CHANNEL" validate:"required,max=63"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL" validate:"required"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE" validate:"gte=1,lte=10000"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

var keys = []string{
	"APP_ENV",
	"LOG_LEVEL",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"DB_MAX_CONN_LIFETIME",
	"TX_ISOLATION",
	"TX_STATEMENT_TIMEOUT",
	"CASCADE_KEEP_PARENTS",
	"CASCADE_FAST_PATH",
	"CASCADE_BATCH_SIZE",
	"AUDIT_ENABLED",
	"AUDIT_FILTER",
	"OUTBOX_ENABLED",
	"NOTIFY_CHANNEL",
	"OUTBOX_POLL_INTERVAL",
	"OUTBOX_BATCH_SIZE",
}

// Load reads .env files if present, applies defaults, binds env vars and
// validates the result.
func Load() (*Config, error) {
	// Load .env if present (non-fatal)
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("DB_MAX_CONN_LIFETIME", "1h")
	v.SetDefault("TX_ISOLATION", "read_committed")
	v.SetDefault("TX_STATEMENT_TIMEOUT", "0s")
	v.SetDefault("CASCADE_KEEP_PARENTS", false)
	v.SetDefault("CASCADE_FAST_PATH", true)
	v.SetDefault("CASCADE_BATCH_SIZE", 100)
	v.SetDefault("AUDIT_ENABLED", true)
	v.SetDefault("OUTBOX_ENABLED", true)
	v.SetDefault("NOTIFY_CHANNEL", "cascade_changed")
	v.SetDefault("OUTBOX_POLL_INTERVAL", "5s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 100)

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}

	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &c, nil
}

// RequireDatabase fails when no database URL is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// IsDevelopment reports whether logs should be human readable.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "test"
}
