// Команда loadtest нагружает gRPC API заказов и печатает сводку латентностей.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/orderstore/internal/api"
	grpcsvc "github.com/vladislavdragonenkov/orderstore/internal/service/grpc"
)

type loadMode string

const (
	// modeCreate только создаёт заказы.
	modeCreate loadMode = "create"
	// modeCreateUpdate после создания заменяет позиции и меняет статус.
	modeCreateUpdate loadMode = "create-update"
	// modeCreateCheck дополнительно сверяет снимок с хранилищем позиций.
	modeCreateCheck loadMode = "create-check"
)

type config struct {
	addr        string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	connections int
	timeout     time.Duration
	mode        loadMode
	products    []string
	quantity    int
	price       decimal.Decimal
	customerTag string
	outputPath  string
}

// orderClient: подмножество grpcsvc.OrderServiceClient, которое использует сценарий.
type orderClient interface {
	CreateOrder(ctx context.Context, req api.CreateOrderRequest, opts ...grpc.CallOption) (api.Order, error)
	UpdateOrder(ctx context.Context, id string, req api.UpdateOrderRequest, opts ...grpc.CallOption) (api.Order, error)
	CheckConsistency(ctx context.Context, id string, opts ...grpc.CallOption) (api.DriftReport, error)
}

var _ orderClient = (*grpcsvc.OrderServiceClient)(nil)

var errDrift = status.Error(codes.DataLoss, "order snapshot drifted from line item store")

func parseConfig() (config, error) {
	var (
		cfg      config
		mode     string
		products string
		price    string
	)

	flag.StringVar(&cfg.addr, "addr", "localhost:50051", "gRPC address of order-service")
	flag.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration caps the run only when set explicitly")
	flag.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count")
	flag.IntVar(&cfg.concurrency, "concurrency", 40, "concurrent workers")
	flag.IntVar(&cfg.connections, "connections", 8, "gRPC client connections")
	flag.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-RPC timeout")
	flag.StringVar(&mode, "mode", string(modeCreate), "scenario: create | create-update | create-check")
	flag.StringVar(&products, "products", "prod1,prod2", "catalog product ids, comma-separated")
	flag.IntVar(&cfg.quantity, "quantity", 1, "quantity of every line item")
	flag.StringVar(&price, "replacement-price", "9.99", "unit price of replacement items in update scenarios")
	flag.StringVar(&cfg.customerTag, "customer-tag", "load", "customer id prefix")
	flag.StringVar(&cfg.outputPath, "output", "", "optional JSON report path")
	flag.Parse()

	flag.CommandLine.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	parsed, err := parseMode(mode)
	if err != nil {
		return cfg, err
	}
	cfg.mode = parsed
	cfg.products = splitProducts(products)
	if cfg.price, err = decimal.NewFromString(strings.TrimSpace(price)); err != nil {
		return cfg, fmt.Errorf("parse replacement-price: %w", err)
	}

	switch {
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.connections <= 0:
		return cfg, errors.New("connections must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case len(cfg.products) == 0:
		return cfg, errors.New("at least one product is required")
	case cfg.quantity <= 0:
		return cfg, errors.New("quantity must be > 0")
	case cfg.price.IsNegative():
		return cfg, errors.New("replacement-price must be >= 0")
	case strings.TrimSpace(cfg.customerTag) == "":
		return cfg, errors.New("customer-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch mode := loadMode(strings.TrimSpace(value)); mode {
	case modeCreate, modeCreateUpdate, modeCreateCheck:
		return mode, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func splitProducts(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func main() {
	cfg, err := parseConfig()
	if err != nil {
		fail("invalid config: %v", err)
	}

	conns := make([]*grpc.ClientConn, 0, cfg.connections)
	clients := make([]orderClient, 0, cfg.connections)
	for range cfg.connections {
		conn, dialErr := grpc.NewClient(cfg.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if dialErr != nil {
			fail("create grpc client connection: %v", dialErr)
		}
		conns = append(conns, conn)
		clients = append(clients, grpcsvc.NewOrderServiceClient(conn))
	}
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	result := execute(cfg, clients, runID)

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			fail("write report: %v", err)
		}
	}
	if result.Failed > 0 {
		os.Exit(1)
	}
}

// execute раздаёт сценарии воркерам и собирает отчёт после завершения всех.
func execute(cfg config, clients []orderClient, runID string) report {
	startedAt := time.Now()
	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)

	var group errgroup.Group
	for worker := range cfg.concurrency {
		client := clients[worker%len(clients)]
		group.Go(func() error {
			for index := range jobs {
				_ = runScenario(client, cfg, index, runID, col)
			}
			return nil
		})
	}

	dispatchJobs(jobs, cfg)
	_ = group.Wait()
	return col.build(startedAt, time.Since(startedAt))
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := range cfg.total {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()
	for i := 0; !cfg.totalSet || i < cfg.total; i++ {
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client orderClient, cfg config, index int, runID string, col *collector) (err error) {
	started := time.Now()
	defer func() {
		col.record(scenarioMethod, time.Since(started), grpcCode(err))
	}()

	created, err := timed(col, "CreateOrder", cfg.timeout, func(ctx context.Context) (api.Order, error) {
		ctx = grpcsvc.WithIdempotencyKey(ctx, fmt.Sprintf("lt-create-%s-%d", runID, index))
		return client.CreateOrder(ctx, newOrderRequest(cfg, runID, index))
	})
	if err != nil {
		return err
	}
	if created.ID == "" {
		return status.Error(codes.Internal, "create response returned empty order id")
	}
	if cfg.mode == modeCreate {
		return nil
	}

	_, err = timed(col, "UpdateOrder", cfg.timeout, func(ctx context.Context) (api.Order, error) {
		return client.UpdateOrder(ctx, created.ID, replacementRequest(cfg, index))
	})
	if err != nil || cfg.mode == modeCreateUpdate {
		return err
	}

	drift, err := timed(col, "CheckConsistency", cfg.timeout, func(ctx context.Context) (api.DriftReport, error) {
		return client.CheckConsistency(ctx, created.ID)
	})
	if err != nil {
		return err
	}
	if !drift.InSync {
		return errDrift
	}
	return nil
}

// timed выполняет один RPC с таймаутом и записывает его латентность.
func timed[T any](col *collector, method string, timeout time.Duration, call func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	started := time.Now()
	out, err := call(ctx)
	col.record(method, time.Since(started), grpcCode(err))
	return out, err
}

func newOrderRequest(cfg config, runID string, index int) api.CreateOrderRequest {
	items := make([]api.ItemRequest, 0, len(cfg.products))
	for _, productID := range cfg.products {
		items = append(items, api.ItemRequest{ProductID: productID, Quantity: int32(cfg.quantity)})
	}
	return api.CreateOrderRequest{
		CustomerID: fmt.Sprintf("%s-%s-%d", cfg.customerTag, runID, index),
		Items:      items,
	}
}

// replacementRequest оставляет один товар, выбранный по номеру сценария.
// При замене каталог не используется, поэтому цена передаётся явно.
func replacementRequest(cfg config, index int) api.UpdateOrderRequest {
	processing := "processing"
	price := cfg.price
	items := []api.ItemRequest{{
		ProductID: cfg.products[index%len(cfg.products)],
		Quantity:  int32(cfg.quantity + 1),
		UnitPrice: &price,
	}}
	return api.UpdateOrderRequest{Status: &processing, Items: &items}
}

func grpcCode(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	return status.Code(err)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
