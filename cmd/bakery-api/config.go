package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/bakery/internal/app"
)

const (
	envHTTPAddr                    = "HTTP_ADDR"
	envMetricsAddr                 = "METRICS_ADDR"
	envGRPCAddr                    = "GRPC_ADDR"
	envStorageDriver               = "STORAGE_DRIVER"
	envPostgresDSN                 = "DATABASE_URL"
	envPostgresAutoMigrate         = "DB_AUTO_MIGRATE"
	envRedisAddr                   = "REDIS_ADDR"
	envCacheTTL                    = "CACHE_TTL"
	envJWTSecret                   = "JWT_SECRET"
	envJWTTTL                      = "JWT_TTL"
	envAdminEmail                  = "ADMIN_EMAIL"
	envAdminPassword               = "ADMIN_PASSWORD"
	envAuthRateLimit               = "AUTH_RATE_LIMIT"
	envAuthRateBurst               = "AUTH_RATE_BURST"
	envKafkaBrokers                = "KAFKA_BROKERS"
	envKafkaOrderTopic             = "KAFKA_ORDER_TOPIC"
	envKafkaDLQTopic               = "KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "OUTBOX_RETRY_DELAY"
	envIdempotencyTTL              = "IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envSeedDemoData                = "SEED_DEMO_DATA"
	envShutdownTimeout             = "SHUTDOWN_TIMEOUT"
)

type envLookup func(string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение не роняет запуск: остаётся значение по умолчанию, а
// проблема возвращается предупреждением.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, value string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, value, err))
	}

	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setBool := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	setInt := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	setDuration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warn(key, v, err)
			return
		}
		*dst = parsed
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = app.StorageDriver(strings.ToLower(strings.TrimSpace(v)))
	}
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	setString(envRedisAddr, &cfg.RedisAddr)
	setDuration(envCacheTTL, &cfg.CacheTTL, positive, "must be > 0")

	setString(envJWTSecret, &cfg.JWTSecret)
	setDuration(envJWTTTL, &cfg.JWTTTL, positive, "must be > 0")
	setString(envAdminEmail, &cfg.AdminEmail)
	if v, ok := lookup(envAdminPassword); ok {
		cfg.AdminPassword = v
	}

	if v, ok := lookup(envAuthRateLimit); ok && strings.TrimSpace(v) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		switch {
		case err != nil:
			warn(envAuthRateLimit, v, err)
		case parsed <= 0:
			warn(envAuthRateLimit, v, fmt.Errorf("must be > 0"))
		default:
			cfg.AuthRateLimit = parsed
		}
	}
	setInt(envAuthRateBurst, &cfg.AuthRateBurst)

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	setString(envKafkaOrderTopic, &cfg.KafkaOrderTopic)
	setString(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize)
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")

	setDuration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive, "must be > 0")
	setDuration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	setInt(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	setBool(envSeedDemoData, &cfg.SeedDemoData)
	setDuration(envShutdownTimeout, &cfg.ShutdownTimeout, positive, "must be > 0")

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true, nil
	case "0", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(value) {
		return 0, fmt.Errorf("%s %s", value, rule)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
