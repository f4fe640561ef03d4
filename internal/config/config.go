package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	ServerPort             string `mapstructure:"SERVER_PORT"`
	MetricsPort            string `mapstructure:"METRICS_PORT"`
	StoreDriver            string `mapstructure:"STORE_DRIVER"`
	DatabaseURL            string `mapstructure:"DATABASE_URL"`
	DBMaxConns             int32  `mapstructure:"DB_MAX_CONNS"`
	RedisURL               string `mapstructure:"REDIS_URL"`
	FeeRateCacheTTLSeconds int    `mapstructure:"FEE_RATE_CACHE_TTL_SECONDS"`
	RabbitMQURL            string `mapstructure:"RABBITMQ_URL"`
	EventExchange          string `mapstructure:"EVENT_EXCHANGE"`
	NotificationExchange   string `mapstructure:"NOTIFICATION_EXCHANGE"`
	EventSigningKey        string `mapstructure:"EVENT_SIGNING_KEY"`
	LockTimeoutMS          int    `mapstructure:"LOCK_TIMEOUT_MS"`
	MaxConcurrentTransfers int    `mapstructure:"MAX_CONCURRENT_TRANSFERS"`
	KYCLimit               string `mapstructure:"KYC_LIMIT"`
	FraudThreshold         string `mapstructure:"FRAUD_THRESHOLD"`
	BalanceScope           string `mapstructure:"BALANCE_SCOPE"`
	LogLevel               string `mapstructure:"LOG_LEVEL"`
	BreakerFailures        uint32 `mapstructure:"BREAKER_FAILURES"`
	BreakerTimeoutSeconds  int    `mapstructure:"BREAKER_TIMEOUT_SECONDS"`
	SeedFile               string `mapstructure:"SEED_FILE"`
	MaxTransferAmount      string `mapstructure:"MAX_TRANSFER_AMOUNT"`
}

var keys = []string{
	"SERVER_PORT", "METRICS_PORT", "STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS",
	"REDIS_URL", "FEE_RATE_CACHE_TTL_SECONDS", "RABBITMQ_URL", "EVENT_EXCHANGE",
	"NOTIFICATION_EXCHANGE", "EVENT_SIGNING_KEY", "LOCK_TIMEOUT_MS", "MAX_CONCURRENT_TRANSFERS",
	"KYC_LIMIT", "FRAUD_THRESHOLD", "BALANCE_SCOPE", "LOG_LEVEL", "BREAKER_FAILURES",
	"BREAKER_TIMEOUT_SECONDS", "SEED_FILE", "MAX_TRANSFER_AMOUNT",
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("METRICS_PORT", "9090")
	v.SetDefault("STORE_DRIVER", StoreMemory)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("FEE_RATE_CACHE_TTL_SECONDS", 300)
	v.SetDefault("EVENT_EXCHANGE", "ledger_events")
	v.SetDefault("NOTIFICATION_EXCHANGE", "ledger_notifications")
	v.SetDefault("LOCK_TIMEOUT_MS", 5000)
	v.SetDefault("MAX_CONCURRENT_TRANSFERS", 8)
	v.SetDefault("KYC_LIMIT", "10000.00")
	v.SetDefault("FRAUD_THRESHOLD", "10000.00")
	v.SetDefault("BALANCE_SCOPE", "account")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BREAKER_FAILURES", 5)
	v.SetDefault("BREAKER_TIMEOUT_SECONDS", 30)
	v.SetDefault("MAX_TRANSFER_AMOUNT", "0")

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("failed to read config file; using environment values", "error", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.MaxConcurrentTransfers <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_TRANSFERS must be positive, got %d", c.MaxConcurrentTransfers)
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=%s", StorePostgres)
		}
		// A transfer holds its unit's connection while recording status on a second one.
		if int64(c.MaxConcurrentTransfers)*2 > int64(c.DBMaxConns) {
			return fmt.Errorf("MAX_CONCURRENT_TRANSFERS=%d needs DB_MAX_CONNS of at least %d, got %d",
				c.MaxConcurrentTransfers, c.MaxConcurrentTransfers*2, c.DBMaxConns)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if err := positiveAmount("KYC_LIMIT", c.KYCLimit); err != nil {
		return err
	}
	if err := positiveAmount("FRAUD_THRESHOLD", c.FraudThreshold); err != nil {
		return err
	}
	if c.MaxTransferAmount != "" {
		limit, err := decimal.NewFromString(c.MaxTransferAmount)
		if err != nil {
			return fmt.Errorf("invalid MAX_TRANSFER_AMOUNT %q: %w", c.MaxTransferAmount, err)
		}
		if limit.IsNegative() {
			return fmt.Errorf("MAX_TRANSFER_AMOUNT must not be negative, got %s", c.MaxTransferAmount)
		}
	}
	if c.LockTimeoutMS <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT_MS must be positive, got %d", c.LockTimeoutMS)
	}
	if c.RabbitMQURL != "" && c.EventSigningKey == "" {
		return fmt.Errorf("EVENT_SIGNING_KEY is required when RABBITMQ_URL is set")
	}
	if _, ok := logLevels[strings.ToLower(strings.TrimSpace(c.LogLevel))]; !ok {
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return nil
}

func positiveAmount(key, raw string) error {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	if !d.IsPositive() {
		return fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return nil
}

var logLevels = map[string]slog.Level{
	"":        slog.LevelInfo,
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

func (c Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutMS) * time.Millisecond
}

func (c Config) FeeRateCacheTTL() time.Duration {
	return time.Duration(c.FeeRateCacheTTLSeconds) * time.Second
}

func (c Config) BreakerTimeout() time.Duration {
	return time.Duration(c.BreakerTimeoutSeconds) * time.Second
}

func (c Config) KYCLimitAmount() decimal.Decimal {
	return decimal.RequireFromString(c.KYCLimit)
}

func (c Config) FraudThresholdAmount() decimal.Decimal {
	return decimal.RequireFromString(c.FraudThreshold)
}

func (c Config) SlogLevel() slog.Level {
	return logLevels[strings.ToLower(strings.TrimSpace(c.LogLevel))]
}

// MaxTransferAmountValue is zero when transfers are uncapped.
func (c Config) MaxTransferAmountValue() decimal.Decimal {
	if c.MaxTransferAmount == "" {
		return decimal.Zero
	}
	return decimal.RequireFromString(c.MaxTransferAmount)
}
