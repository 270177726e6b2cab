package app

import (
	"time"

	"github.com/vladislavdragonenkov/orderstore/internal/catalog"
	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderstore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstore/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderstore/internal/service/rest"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
	StorageDriverSQLite   = "sqlite"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	GRPCAddr    string
	HTTPAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool
	SQLitePath          string

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaDLQTopic string
	KafkaClientID string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending: порог backlog, после которого /readyz сообщает degraded.
	OutboxMaxPending int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	CatalogCacheSize         int
	CatalogCacheTTL          time.Duration
	CatalogLookupConcurrency int

	HTTPRateRPS   float64
	HTTPRateBurst int
}

// DefaultConfig возвращает настройки для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		GRPCAddr:    ":50051",
		HTTPAddr:    ":8080",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		SQLitePath:          "orderstore.db",

		KafkaTopic:    kafka.TopicOrderEvents,
		KafkaDLQTopic: kafka.TopicDeadLetterQueue,
		KafkaClientID: "orderstore",

		OutboxPollInterval: outbox.DefaultPollInterval,
		OutboxBatchSize:    outbox.DefaultBatchSize,
		OutboxMaxAttempts:  outbox.DefaultMaxAttempts,
		OutboxRetryDelay:   outbox.DefaultRetryBaseDelay,
		OutboxMaxPending:   1000,

		IdempotencyCleanupInterval:  idempotency.DefaultCleanupInterval,
		IdempotencyCleanupBatchSize: idempotency.DefaultCleanupBatchSize,

		CatalogCacheSize:         catalog.DefaultCacheSize,
		CatalogCacheTTL:          catalog.DefaultCacheTTL,
		CatalogLookupConcurrency: orders.DefaultLookupConcurrency,

		HTTPRateRPS:   rest.DefaultRateRPS,
		HTTPRateBurst: rest.DefaultRateBurst,
	}
}
