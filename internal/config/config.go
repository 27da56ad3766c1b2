package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"APP_ENV"` // development | production
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`

	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`

	StoreTimeoutMS          int    `mapstructure:"STORE_TIMEOUT_MS"`
	LockTTLSeconds          int    `mapstructure:"LOCK_TTL_SECONDS"`
	WithdrawalNoteThreshold string `mapstructure:"WITHDRAWAL_NOTE_THRESHOLD"`
	RetentionDays           int    `mapstructure:"RETENTION_DAYS"`
}

var defaults = map[string]any{
	"PORT":                      "8080",
	"APP_ENV":                   "development",
	"LOG_LEVEL":                 "info",
	"ALLOWED_ORIGIN":            "http://127.0.0.1:3000",
	"DATABASE_URL":              "",
	"REDIS_ADDR":                "",
	"REDIS_PASSWORD":            "",
	"REDIS_DB":                  0,
	"AUTH_SECRET":               "",
	"ACCESS_TOKEN_TTL_MINUTES":  480,
	"STORE_TIMEOUT_MS":          5000,
	"LOCK_TTL_SECONDS":          30,
	"WITHDRAWAL_NOTE_THRESHOLD": "100.00",
	"RETENTION_DAYS":            7,
}

// Load reads the environment and an optional .env file in the working directory.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.StoreTimeoutMS < 1 {
		cfg.StoreTimeoutMS = 5000
	}
	if cfg.LockTTLSeconds < 1 {
		cfg.LockTTLSeconds = 30
	}
	if cfg.RetentionDays < 1 {
		cfg.RetentionDays = 7
	}
	if _, err := decimal.NewFromString(cfg.WithdrawalNoteThreshold); err != nil {
		return Config{}, fmt.Errorf("WITHDRAWAL_NOTE_THRESHOLD: %w", err)
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutMS) * time.Millisecond
}

// SettlementStoreCalls is the store round trips of a settlement for a small
// order: order and register reads, stock read, one write per product, the
// order update and the movement insert, plus a compensation.
const SettlementStoreCalls = 10

// LockTTL is the configured lease, raised to cover SettlementStoreCalls calls
// that each run to the store timeout. The redis lock also renews the lease
// while held, so larger orders stay covered.
func (c Config) LockTTL() time.Duration {
	ttl := time.Duration(c.LockTTLSeconds) * time.Second
	if floor := c.StoreTimeout() * SettlementStoreCalls; ttl < floor {
		return floor
	}
	return ttl
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) NoteThreshold() decimal.Decimal {
	threshold, err := decimal.NewFromString(c.WithdrawalNoteThreshold)
	if err != nil {
		return decimal.NewFromInt(100)
	}
	return threshold
}
