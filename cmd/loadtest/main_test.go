package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/orderstore/internal/api"
	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/orderstore/internal/service/grpc"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/memory"
)

func withCLIArgs(t *testing.T, args []string, fn func()) {
	t.Helper()

	oldArgs := os.Args
	oldCommandLine := flag.CommandLine
	defer func() {
		os.Args = oldArgs
		flag.CommandLine = oldCommandLine
	}()

	os.Args = append([]string{"loadtest"}, args...)
	flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fn()
}

// startService поднимает OrderService поверх движка в памяти.
func startService(t *testing.T) *grpcsvc.OrderServiceClient {
	t.Helper()

	catalog := memory.NewProductRepository(
		domain.Product{ID: "prod1", Name: "Laptop", Price: decimal.RequireFromString("999.99")},
		domain.Product{ID: "prod2", Name: "Monitor", Price: decimal.RequireFromString("299.99")},
	)
	engine, err := orders.NewEngine(memory.NewOrderRepository(), memory.NewLineItemRepository(), catalog)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(engine, memory.NewIdempotencyRepository(), nil))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return grpcsvc.NewOrderServiceClient(conn)
}

func testConfig(mode loadMode) config {
	return config{
		total:       6,
		concurrency: 3,
		connections: 1,
		timeout:     5 * time.Second,
		mode:        mode,
		products:    []string{"prod1", "prod2"},
		quantity:    1,
		price:       decimal.RequireFromString("9.99"),
		customerTag: "load",
	}
}

func TestParseMode(t *testing.T) {
	for _, mode := range []loadMode{modeCreate, modeCreateUpdate, modeCreateCheck} {
		got, err := parseMode(" " + string(mode) + " ")
		if err != nil || got != mode {
			t.Fatalf("parseMode(%q) = %q, %v", mode, got, err)
		}
	}
	if _, err := parseMode("create-pay"); err == nil {
		t.Fatal("expected unsupported mode error")
	}
}

func TestParseConfig(t *testing.T) {
	withCLIArgs(t, []string{"-mode=create-check", "-products=prod1, ,prod3", "-quantity=2", "-duration=1s", "-total=10"}, func() {
		cfg, err := parseConfig()
		if err != nil {
			t.Fatalf("parseConfig: %v", err)
		}
		if cfg.mode != modeCreateCheck || cfg.quantity != 2 {
			t.Fatalf("unexpected config: %+v", cfg)
		}
		if len(cfg.products) != 2 || cfg.products[1] != "prod3" {
			t.Fatalf("unexpected products: %v", cfg.products)
		}
		if !cfg.totalSet || cfg.duration != time.Second {
			t.Fatalf("expected explicit total with duration: %+v", cfg)
		}
	})

	invalid := map[string][]string{
		"mode":        {"-mode=refund"},
		"total":       {"-total=0"},
		"capped":      {"-duration=1s", "-total=0"},
		"concurrency": {"-concurrency=0"},
		"connections": {"-connections=0"},
		"timeout":     {"-timeout=0s"},
		"products":    {"-products= , "},
		"quantity":    {"-quantity=0"},
		"price":       {"-replacement-price=abc"},
		"negative":    {"-replacement-price=-1"},
		"customer":    {"-customer-tag= "},
	}
	for name, args := range invalid {
		withCLIArgs(t, args, func() {
			if _, err := parseConfig(); err == nil {
				t.Fatalf("%s: expected validation error for %v", name, args)
			}
		})
	}
}

func TestDispatchJobs(t *testing.T) {
	jobs := make(chan int, 10)
	dispatchJobs(jobs, config{total: 3})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 3 || got[2] != 2 {
		t.Fatalf("unexpected jobs: %v", got)
	}

	capped := make(chan int, 10)
	dispatchJobs(capped, config{duration: time.Second, total: 4, totalSet: true})
	count := 0
	for range capped {
		count++
	}
	if count != 4 {
		t.Fatalf("expected total to cap duration run, got %d jobs", count)
	}
}

func TestExecute_AllModesAgainstEngine(t *testing.T) {
	client := startService(t)

	for _, mode := range []loadMode{modeCreate, modeCreateUpdate, modeCreateCheck} {
		t.Run(string(mode), func(t *testing.T) {
			result := execute(testConfig(mode), []orderClient{client}, "run-"+string(mode))
			if result.Scenarios != 6 || result.Failed != 0 {
				t.Fatalf("unexpected result: %+v", result)
			}
			if result.Methods["CreateOrder"].Calls != 6 {
				t.Fatalf("expected 6 CreateOrder calls, got %+v", result.Methods["CreateOrder"])
			}
			_, checked := result.Methods["CheckConsistency"]
			if checked != (mode == modeCreateCheck) {
				t.Fatalf("unexpected CheckConsistency stats presence for %s", mode)
			}
		})
	}
}

func TestRunScenario_ReportsDriftAndErrors(t *testing.T) {
	col := newCollector()
	cfg := testConfig(modeCreateCheck)

	drifting := &fakeClient{drift: api.DriftReport{InSync: false, Missing: []string{"li-1"}}}
	err := runScenario(drifting, cfg, 0, "run", col)
	if status.Code(err) != codes.DataLoss {
		t.Fatalf("expected DataLoss, got %v", err)
	}

	failing := &fakeClient{createErr: status.Error(codes.FailedPrecondition, "unknown product")}
	if err := runScenario(failing, cfg, 1, "run", col); status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("expected create error, got %v", err)
	}
	if failing.updates != 0 {
		t.Fatal("update must not run after failed create")
	}

	result := col.build(time.Now(), time.Second)
	if result.Failed != 2 || result.DriftDetected != 1 {
		t.Fatalf("unexpected report: %+v", result)
	}
}

func TestCollectorAndReport(t *testing.T) {
	c := newCollector()
	c.record(scenarioMethod, 10*time.Millisecond, codes.OK)
	c.record(scenarioMethod, 20*time.Millisecond, codes.Internal)
	c.record("CreateOrder", 15*time.Millisecond, codes.OK)

	r := c.build(time.Now(), 2*time.Second)
	if r.Scenarios != 2 || r.Failed != 1 || r.ErrorRate != 0.5 {
		t.Fatalf("unexpected totals: %+v", r)
	}
	if r.RPS != 1 {
		t.Fatalf("expected rps=1, got %f", r.RPS)
	}
	if r.Methods[scenarioMethod].Codes[codes.Internal.String()] != 1 {
		t.Fatalf("unexpected codes: %+v", r.Methods[scenarioMethod].Codes)
	}

	var out bytes.Buffer
	printReport(&out, r, config{mode: modeCreate, total: 2})
	text := out.String()
	if !strings.Contains(text, "scenarios=2") || !strings.Contains(text, "CreateOrder: calls=1") {
		t.Fatalf("unexpected summary:\n%s", text)
	}
	if strings.Contains(text, "scenario: calls") {
		t.Fatalf("scenario pseudo-method must not be listed:\n%s", text)
	}
}

func TestLatencyHelpers(t *testing.T) {
	values := []float64{40, 10, 30, 20}
	summary := summarize(values)
	if summary.Min != 10 || summary.Max != 40 || summary.Avg != 25 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if values[0] != 40 {
		t.Fatal("summarize must not reorder input")
	}
	if got := percentile([]float64{10, 20}, 50); got != 15 {
		t.Fatalf("percentile mismatch: %f", got)
	}
	if got := ratio(1, 0); got != 0 {
		t.Fatalf("ratio with zero total must be 0, got %f", got)
	}

	if got := runTarget(config{total: 50}); got != "count:50" {
		t.Fatalf("unexpected run target: %s", got)
	}
	if got := runTarget(config{duration: 2 * time.Second, total: 10, totalSet: true}); got != "duration:2s,max-total:10" {
		t.Fatalf("unexpected capped run target: %s", got)
	}
}

func TestWriteJSONReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := writeJSONReport(path, report{Scenarios: 2, Succeeded: 2}); err != nil {
		t.Fatalf("writeJSONReport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var decoded report
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if decoded.Scenarios != 2 || decoded.Succeeded != 2 {
		t.Fatalf("unexpected decoded report: %+v", decoded)
	}

	if err := writeJSONReport("../outside.json", report{}); err == nil {
		t.Fatal("expected error for path outside working directory")
	}
}

type fakeClient struct {
	createErr error
	drift     api.DriftReport
	updates   int
}

func (f *fakeClient) CreateOrder(context.Context, api.CreateOrderRequest, ...grpc.CallOption) (api.Order, error) {
	if f.createErr != nil {
		return api.Order{}, f.createErr
	}
	return api.Order{ID: "ord-1"}, nil
}

func (f *fakeClient) UpdateOrder(_ context.Context, id string, _ api.UpdateOrderRequest, _ ...grpc.CallOption) (api.Order, error) {
	f.updates++
	if id == "" {
		return api.Order{}, errors.New("empty id")
	}
	return api.Order{ID: id}, nil
}

func (f *fakeClient) CheckConsistency(context.Context, string, ...grpc.CallOption) (api.DriftReport, error) {
	return f.drift, nil
}
