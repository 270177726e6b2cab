// Package app собирает сервис заказов: хранилище, движок, транспорты и фоновые воркеры.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/orderstore/internal/catalog"
	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderstore/internal/health"
	"github.com/vladislavdragonenkov/orderstore/internal/metrics"
	grpcsvc "github.com/vladislavdragonenkov/orderstore/internal/service/grpc"
	"github.com/vladislavdragonenkov/orderstore/internal/service/idempotency"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstore/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderstore/internal/service/rest"
	"github.com/vladislavdragonenkov/orderstore/internal/version"
)

const shutdownTimeout = 5 * time.Second

// newEngine собирает движок поверх хранилищ deps с кэшем каталога и метриками.
func newEngine(cfg Config, deps *runtimeDependencies, logger *log.Entry) (*orders.Engine, error) {
	cached, err := catalog.NewCached(deps.products, cfg.CatalogCacheSize,
		catalog.WithTTL(cfg.CatalogCacheTTL),
		catalog.WithRegisterer(prometheus.DefaultRegisterer),
	)
	if err != nil {
		return nil, err
	}
	return orders.NewEngine(deps.orders, deps.items, cached,
		orders.WithLogger(logger.WithField("component", "orders")),
		orders.WithOutbox(deps.outboxRepo),
		orders.WithMetrics(metrics.NewOrderMetrics()),
		orders.WithLookupConcurrency(cfg.CatalogLookupConcurrency),
	)
}

// Run запускает сервис и блокируется до отмены ctx или ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	engine, err := newEngine(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("build order engine: %w", err)
	}

	publishers, _ := initKafka(cfg, logger)
	defer closeKafka(publishers, logger)

	workerMetrics := metrics.NewWorkerMetrics(prometheus.DefaultRegisterer)
	workersCtx, stopWorkers := context.WithCancel(ctx)
	outboxDone := startOutboxWorker(workersCtx, cfg, deps.outboxRepo, publishers, workerMetrics, logger)
	cleanupDone := startCleanupWorker(workersCtx, cfg, deps.idempotencyRepo, workerMetrics, logger)
	defer shutdownWorkers(stopWorkers, logger, outboxDone, cleanupDone)

	healthHandler := newHealthHandler(cfg, deps)

	grpcServer, grpcHealth := newGRPCServer(engine, deps.idempotencyRepo, logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	router, err := rest.NewRouter(engine, rest.Config{
		RateRPS:   cfg.HTTPRateRPS,
		RateBurst: cfg.HTTPRateBurst,
		Logger:    logger.WithField("layer", "rest"),
	})
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("build rest router: %w", err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}
	httpSrv := &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("grpc server listening on %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("rest api listening on %s", httpLis.Addr())
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, grpc.ErrServerStopped) {
			runErr = err
		}
	}

	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	stopGRPC(grpcServer, logger)
	shutdownHTTP(httpSrv, logger)
	shutdownHTTP(metricsSrv, logger)
	return runErr
}

func newGRPCServer(engine *orders.Engine, idem domain.IdempotencyRepository, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(engine, idem, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(server)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	reflection.Register(server)
	return server, healthServer
}

func newHealthHandler(cfg Config, deps *runtimeDependencies) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		handler.Register("storage", deps.storageChecker)
	}
	if deps.outboxRepo != nil {
		handler.Register("outbox", healthcheck.BacklogChecker("outbox", cfg.OutboxMaxPending, func(ctx context.Context) (int, error) {
			stats, err := deps.outboxRepo.Stats(ctx)
			return stats.PendingCount, err
		}))
	}
	return handler
}

func startOutboxWorker(
	ctx context.Context,
	cfg Config,
	repo domain.OutboxRepository,
	publishers *kafkaPublishers,
	workerMetrics *metrics.WorkerMetrics,
	logger *log.Entry,
) <-chan struct{} {
	var events, dlq domain.OutboxPublisher
	if publishers != nil {
		events, dlq = publishers.events, publishers.dlq
	}

	worker := outbox.NewWorker(repo, events,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(dlq),
		outbox.WithMetrics(workerMetrics),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

func startCleanupWorker(
	ctx context.Context,
	cfg Config,
	repo domain.IdempotencyRepository,
	workerMetrics *metrics.WorkerMetrics,
	logger *log.Entry,
) <-chan struct{} {
	worker := idempotency.NewCleanupWorker(repo,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
		idempotency.WithMetrics(workerMetrics),
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// shutdownWorkers отменяет воркеры и ждёт их не дольше shutdownTimeout.
func shutdownWorkers(cancel context.CancelFunc, logger *log.Entry, done ...<-chan struct{}) {
	if cancel != nil {
		cancel()
	}
	timeout := time.After(shutdownTimeout)
	for _, ch := range done {
		if ch == nil {
			continue
		}
		select {
		case <-ch:
		case <-timeout:
			logger.Warn("background workers did not stop in time")
			return
		}
	}
}

func stopGRPC(server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("grpc graceful stop timed out, forcing stop")
		server.Stop()
	}
}

// startMetricsServer отдаёт /metrics и пробы здоровья.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("metrics and health probes on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()
	return srv
}

func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// EngineHandle: движок поверх выбранного хранилища для утилит командной строки.
type EngineHandle struct {
	Engine   *orders.Engine
	Products domain.ProductRepository

	deps   *runtimeDependencies
	logger *log.Entry
}

// OpenEngine открывает хранилище cfg и собирает движок без транспортов и воркеров.
func OpenEngine(ctx context.Context, cfg Config, logger *log.Entry) (*EngineHandle, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	engine, err := newEngine(cfg, deps, logger)
	if err != nil {
		deps.close(logger)
		return nil, fmt.Errorf("build order engine: %w", err)
	}
	return &EngineHandle{Engine: engine, Products: deps.products, deps: deps, logger: logger}, nil
}

// Close закрывает хранилище.
func (h *EngineHandle) Close() {
	if h == nil {
		return
	}
	h.deps.close(h.logger)
}
