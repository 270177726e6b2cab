package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderstore/internal/health"
)

func requireComplete(t *testing.T, deps *runtimeDependencies) {
	t.Helper()
	if deps.orders == nil || deps.items == nil || deps.products == nil {
		t.Fatalf("order, item and product repositories must be initialized: %+v", deps)
	}
	if deps.outboxRepo == nil || deps.idempotencyRepo == nil {
		t.Fatalf("outbox and idempotency repositories must be initialized: %+v", deps)
	}
}

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(memory) failed: %v", err)
	}
	requireComplete(t, deps)
	if deps.storageChecker != nil {
		t.Error("memory storage should not register a storage checker")
	}
	deps.close(log.WithField("test", "memory-storage"))
}

func TestInitRuntimeDependencies_EmptyDriverFallsBackToMemory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{}, log.WithField("test", "empty-driver"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(\"\") failed: %v", err)
	}
	requireComplete(t, deps)
}

func TestInitRuntimeDependencies_SQLite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "orders.db")
	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverSQLite,
		SQLitePath:    path,
	}, log.WithField("test", "sqlite-storage"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies(sqlite) failed: %v", err)
	}
	defer deps.close(log.WithField("test", "sqlite-storage"))

	requireComplete(t, deps)
	if deps.storageChecker == nil {
		t.Fatal("expected storage checker for sqlite")
	}
	if check := deps.storageChecker.Check(context.Background()); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy sqlite checker, got %+v", check)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("sqlite database file should exist: %v", err)
	}
}

func TestInitRuntimeDependencies_SQLiteRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverSQLite,
	}, log.WithField("test", "sqlite-missing-path"))
	if err == nil {
		t.Fatal("expected error when sqlite driver is selected without path")
	}
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	if err == nil {
		t.Fatal("expected error when postgres driver is selected without DSN")
	}
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "cassandra",
	}, log.WithField("test", "unsupported-driver"))
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("ORDERSTORE_POSTGRES_TEST_DSN"))
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(log.WithField("test", "postgres-init"))

	requireComplete(t, deps)
	if check := deps.storageChecker.Check(context.Background()); check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage checker, got %+v", check)
	}
}

func TestNewEngine_EnqueuesOutboxEvents(t *testing.T) {
	ctx := context.Background()
	logger := log.WithField("test", "engine")

	deps, err := initRuntimeDependencies(ctx, Config{StorageDriver: StorageDriverMemory}, logger)
	if err != nil {
		t.Fatalf("initRuntimeDependencies failed: %v", err)
	}
	engine, err := newEngine(DefaultConfig(), deps, logger)
	if err != nil {
		t.Fatalf("newEngine failed: %v", err)
	}

	order, err := engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"}, nil)
	if err != nil {
		t.Fatalf("CreateOrder failed: %v", err)
	}

	stats, err := deps.outboxRepo.Stats(ctx)
	if err != nil {
		t.Fatalf("outbox stats failed: %v", err)
	}
	if stats.PendingCount != 1 {
		t.Fatalf("expected one pending event for order %s, got %d", order.ID, stats.PendingCount)
	}

	check := newHealthHandler(Config{OutboxMaxPending: 1}, deps).Evaluate(ctx)
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("backlog at threshold should stay healthy, got %+v", check)
	}
}
