package app

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// StorageDriver выбирает хранилище.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	GRPCAddr    string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	RedisAddr string
	CacheTTL  time.Duration

	JWTSecret     string
	JWTTTL        time.Duration
	AdminEmail    string
	AdminPassword string
	AuthRateLimit float64
	AuthRateBurst int

	KafkaBrokers       []string
	KafkaOrderTopic    string
	KafkaDLQTopic      string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	SeedDemoData    bool
	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",
		GRPCAddr:    ":50051",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		CacheTTL: 5 * time.Minute,

		JWTTTL:        24 * time.Hour,
		AuthRateLimit: 5,
		AuthRateBurst: 10,

		KafkaOrderTopic:    "bakery.order.events",
		KafkaDLQTopic:      "bakery.order.dlq",
		OutboxPollInterval: time.Second,
		OutboxBatchSize:    100,
		OutboxMaxAttempts:  5,
		OutboxRetryDelay:   100 * time.Millisecond,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  time.Minute,
		IdempotencyCleanupBatchSize: 500,

		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate проверяет обязательные параметры.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.AdminEmail != "" && len(c.AdminPassword) < 6 {
		errs = append(errs, errors.New("ADMIN_PASSWORD must be at least 6 characters when ADMIN_EMAIL is set"))
	}
	if c.HTTPAddr == "" || c.MetricsAddr == "" {
		errs = append(errs, errors.New("HTTP_ADDR and METRICS_ADDR must not be empty"))
	}

	return errors.Join(errs...)
}

// KafkaEnabled сообщает, настроена ли публикация событий.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
