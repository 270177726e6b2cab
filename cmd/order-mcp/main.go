package main

import (
	"context"
	"flag"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/app"
	"github.com/vladislavdragonenkov/orderstore/internal/seed"
	mcpsvc "github.com/vladislavdragonenkov/orderstore/internal/service/mcp"
	"github.com/vladislavdragonenkov/orderstore/internal/version"
)

func main() {
	var (
		driver, dsn, sqlitePath string
		withSeed                bool
	)
	flag.StringVar(&driver, "driver", os.Getenv("ORDERSTORE_STORAGE_DRIVER"), "storage driver: memory|postgres|sqlite")
	flag.StringVar(&dsn, "dsn", os.Getenv("ORDERSTORE_POSTGRES_DSN"), "PostgreSQL DSN")
	flag.StringVar(&sqlitePath, "sqlite-path", os.Getenv("ORDERSTORE_SQLITE_PATH"), "SQLite database file")
	flag.BoolVar(&withSeed, "seed", false, "load demo catalog and orders before serving")
	flag.Parse()

	// stdout занят протоколом MCP
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "order-mcp")

	cfg := app.DefaultConfig()
	if v := strings.TrimSpace(driver); v != "" {
		cfg.StorageDriver = strings.ToLower(v)
	}
	cfg.PostgresDSN = strings.TrimSpace(dsn)
	if v := strings.TrimSpace(sqlitePath); v != "" {
		cfg.SQLitePath = v
	}

	ctx := context.Background()
	handle, err := app.OpenEngine(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to open storage")
	}
	defer handle.Close()

	if withSeed {
		if _, err := seed.NewSeeder(handle.Products, handle.Engine, logger).Run(ctx); err != nil {
			logger.WithError(err).Fatal("seed failed")
		}
	}

	logger.WithField("storage", cfg.StorageDriver).Info("serving order tools over stdio")
	if err := mcpsvc.NewServer(handle.Engine, version.GetVersion(), logger).ServeStdio(); err != nil {
		logger.WithError(err).Error("mcp server stopped with error")
	}
}
