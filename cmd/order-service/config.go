package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orderstore/internal/app"
)

const (
	envGRPCAddr                    = "ORDERSTORE_GRPC_ADDR"
	envHTTPAddr                    = "ORDERSTORE_HTTP_ADDR"
	envMetricsAddr                 = "ORDERSTORE_METRICS_ADDR"
	envStorageDriver               = "ORDERSTORE_STORAGE_DRIVER"
	envPostgresDSN                 = "ORDERSTORE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "ORDERSTORE_POSTGRES_AUTO_MIGRATE"
	envSQLitePath                  = "ORDERSTORE_SQLITE_PATH"
	envKafkaBrokers                = "ORDERSTORE_KAFKA_BROKERS"
	envKafkaTopic                  = "ORDERSTORE_KAFKA_TOPIC"
	envKafkaDLQTopic               = "ORDERSTORE_KAFKA_DLQ_TOPIC"
	envOutboxPollInterval          = "ORDERSTORE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "ORDERSTORE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "ORDERSTORE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "ORDERSTORE_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending            = "ORDERSTORE_OUTBOX_MAX_PENDING"
	envIdempotencyCleanupInterval  = "ORDERSTORE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "ORDERSTORE_IDEMPOTENCY_CLEANUP_BATCH_SIZE"
	envCatalogCacheSize            = "ORDERSTORE_CATALOG_CACHE_SIZE"
	envCatalogCacheTTL             = "ORDERSTORE_CATALOG_CACHE_TTL"
	envCatalogLookupConcurrency    = "ORDERSTORE_CATALOG_LOOKUP_CONCURRENCY"
	envHTTPRateRPS                 = "ORDERSTORE_HTTP_RATE_RPS"
	envHTTPRateBurst               = "ORDERSTORE_HTTP_RATE_BURST"
	envLogLevel                    = "ORDERSTORE_LOG_LEVEL"
)

type envLookup func(string) (string, bool)

func positiveInt(v int) bool { return v > 0 }

func nonNegativeInt(v int) bool { return v >= 0 }

func positiveDuration(v time.Duration) bool { return v > 0 }

func nonNegativeDuration(v time.Duration) bool { return v >= 0 }

// readConfig собирает конфигурацию из окружения процесса.
func readConfig() (app.Config, []string) {
	return readConfigFromEnv(os.LookupEnv)
}

// readConfigFromEnv применяет переопределения поверх DefaultConfig.
// Некорректные значения не применяются и возвращаются как предупреждения.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key, raw string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s=%q ignored: %v", key, raw, err))
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int, valid func(int) bool, rule string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseInt(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return
		}
		v, err := parseDuration(raw, valid, rule)
		if err != nil {
			warn(key, raw, err)
			return
		}
		*dst = v
	}

	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envPostgresDSN, &cfg.PostgresDSN)
	str(envSQLitePath, &cfg.SQLitePath)
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)

	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if raw, ok := lookup(envPostgresAutoMigrate); ok && strings.TrimSpace(raw) != "" {
		v, err := parseBool(raw)
		if err != nil {
			warn(envPostgresAutoMigrate, raw, err)
		} else {
			cfg.PostgresAutoMigrate = v
		}
	}
	if raw, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(raw)
	}

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize, positiveInt, "must be > 0")
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positiveInt, "must be > 0")
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegativeDuration, "must be >= 0")
	integer(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegativeInt, "must be >= 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positiveDuration, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize, positiveInt, "must be > 0")
	integer(envCatalogCacheSize, &cfg.CatalogCacheSize, positiveInt, "must be > 0")
	duration(envCatalogCacheTTL, &cfg.CatalogCacheTTL, positiveDuration, "must be > 0")
	integer(envCatalogLookupConcurrency, &cfg.CatalogLookupConcurrency, positiveInt, "must be > 0")
	integer(envHTTPRateBurst, &cfg.HTTPRateBurst, positiveInt, "must be > 0")

	if raw, ok := lookup(envHTTPRateRPS); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		switch {
		case err != nil:
			warn(envHTTPRateRPS, raw, err)
		case v <= 0:
			warn(envHTTPRateRPS, raw, fmt.Errorf("must be > 0"))
		default:
			cfg.HTTPRateRPS = v
		}
	}

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, fmt.Errorf("%s", rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if !valid(v) {
		return 0, fmt.Errorf("%s", rule)
	}
	return v, nil
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
