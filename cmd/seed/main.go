package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/app"
	"github.com/vladislavdragonenkov/orderstore/internal/seed"
)

const defaultTimeout = 30 * time.Second

// storageConfig строит конфигурацию хранилища из флагов с fallback на окружение.
func storageConfig(driver, dsn, sqlitePath string) app.Config {
	cfg := app.DefaultConfig()
	cfg.StorageDriver = firstNonEmpty(driver, os.Getenv("ORDERSTORE_STORAGE_DRIVER"), cfg.StorageDriver)
	cfg.PostgresDSN = firstNonEmpty(dsn, os.Getenv("ORDERSTORE_POSTGRES_DSN"))
	cfg.SQLitePath = firstNonEmpty(sqlitePath, os.Getenv("ORDERSTORE_SQLITE_PATH"), cfg.SQLitePath)
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func main() {
	var driver, dsn, sqlitePath string
	flag.StringVar(&driver, "driver", "", "storage driver: postgres|sqlite (fallback: ORDERSTORE_STORAGE_DRIVER)")
	flag.StringVar(&dsn, "dsn", "", "PostgreSQL DSN (fallback: ORDERSTORE_POSTGRES_DSN)")
	flag.StringVar(&sqlitePath, "sqlite-path", "", "SQLite database file (fallback: ORDERSTORE_SQLITE_PATH)")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "seed")

	cfg := storageConfig(driver, dsn, sqlitePath)
	if cfg.StorageDriver == app.StorageDriverMemory {
		logger.Warn("seeding in-memory storage has no effect after the process exits")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	handle, err := app.OpenEngine(ctx, cfg, logger)
	if err != nil {
		fail("open storage: %v", err)
	}
	defer handle.Close()

	result, err := seed.NewSeeder(handle.Products, handle.Engine, logger).Run(ctx)
	if err != nil {
		fail("seed failed: %v", err)
	}
	fmt.Printf("seed ok: products created=%d skipped=%d, orders created=%d skipped=%d\n",
		result.ProductsCreated, result.ProductsSkipped, result.OrdersCreated, result.OrdersSkipped)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
