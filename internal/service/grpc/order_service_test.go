package grpcsvc_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/orderstore/internal/api"
	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
	grpcsvc "github.com/vladislavdragonenkov/orderstore/internal/service/grpc"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/memory"
)

type fixture struct {
	client *grpcsvc.OrderServiceClient
	items  domain.LineItemRepository
	orders domain.OrderRepository
}

func newFixture(t *testing.T, withIdempotency bool) fixture {
	t.Helper()

	orderRepo := memory.NewOrderRepository()
	itemRepo := memory.NewLineItemRepository()
	catalog := memory.NewProductRepository(
		domain.Product{ID: "prod1", Name: "Laptop", Price: decimal.RequireFromString("999.99")},
		domain.Product{ID: "prod2", Name: "Monitor", Price: decimal.RequireFromString("299.99")},
	)
	engine, err := orders.NewEngine(orderRepo, itemRepo, catalog)
	require.NoError(t, err)

	var idem domain.IdempotencyRepository
	if withIdempotency {
		idem = memory.NewIdempotencyRepository()
	}

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(engine, idem, nil))
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return fixture{client: grpcsvc.NewOrderServiceClient(conn), items: itemRepo, orders: orderRepo}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func laptopAndMonitors() api.CreateOrderRequest {
	return api.CreateOrderRequest{
		CustomerID: "cust1",
		Items: []api.ItemRequest{
			{ProductID: "prod1", Quantity: 1},
			{ProductID: "prod2", Quantity: 2},
		},
	}
}

func requireCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, status.Code(err), "unexpected status: %v", err)
}

func TestOrderService_CreateGetAndItems(t *testing.T) {
	f := newFixture(t, false)
	ctx := testContext(t)

	created, err := f.client.CreateOrder(ctx, laptopAndMonitors())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "pending", created.Status)
	require.Equal(t, "1599.97", created.Total)
	require.Len(t, created.Items, 2)
	require.Equal(t, "prod1", created.Items[0].ProductID)

	got, err := f.client.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Total, got.Total)

	items, err := f.client.GetOrderItems(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, items.OrderID)
	require.Len(t, items.Items, 2)
}

func TestOrderService_UpdateReplacesItems(t *testing.T) {
	f := newFixture(t, false)
	ctx := testContext(t)

	created, err := f.client.CreateOrder(ctx, laptopAndMonitors())
	require.NoError(t, err)

	price := decimal.RequireFromString("10.00")
	shipped := "shipped"
	replacement := []api.ItemRequest{{ProductID: "prod3", Quantity: 3, UnitPrice: &price}}
	updated, err := f.client.UpdateOrder(ctx, created.ID, api.UpdateOrderRequest{Status: &shipped, Items: &replacement})
	require.NoError(t, err)
	require.Equal(t, "shipped", updated.Status)
	require.Equal(t, "30.00", updated.Total)

	empty := []api.ItemRequest{}
	cleared, err := f.client.UpdateOrder(ctx, created.ID, api.UpdateOrderRequest{Items: &empty})
	require.NoError(t, err)
	require.Empty(t, cleared.Items)
	require.Equal(t, "shipped", cleared.Status)

	stored, err := f.items.FindByOrderID(ctx, created.ID)
	require.NoError(t, err)
	require.Empty(t, stored)
}

func TestOrderService_ListStatsAndDelete(t *testing.T) {
	f := newFixture(t, false)
	ctx := testContext(t)

	first, err := f.client.CreateOrder(ctx, laptopAndMonitors())
	require.NoError(t, err)
	second := laptopAndMonitors()
	second.Status = "shipped"
	_, err = f.client.CreateOrder(ctx, second)
	require.NoError(t, err)

	all, err := f.client.ListOrders(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 2, all.Count)

	shipped, err := f.client.ListOrders(ctx, "shipped")
	require.NoError(t, err)
	require.Equal(t, 1, shipped.Count)

	_, err = f.client.ListOrders(ctx, "lost")
	requireCode(t, err, codes.InvalidArgument)

	stats, err := f.client.OrderStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.Total)
	require.Equal(t, 1, stats.ByStatus["pending"])

	require.NoError(t, f.client.DeleteOrder(ctx, first.ID))
	_, err = f.client.GetOrder(ctx, first.ID)
	requireCode(t, err, codes.NotFound)
}

func TestOrderService_DriftCheckAndReconcile(t *testing.T) {
	f := newFixture(t, false)
	ctx := testContext(t)

	created, err := f.client.CreateOrder(ctx, laptopAndMonitors())
	require.NoError(t, err)

	// позиция добавлена в хранилище в обход движка
	_, err = f.items.Save(ctx, domain.LineItem{ID: "extra", OrderID: created.ID, ProductID: "prod2", Quantity: 1, Position: 2})
	require.NoError(t, err)

	report, err := f.client.CheckConsistency(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, report.InSync)
	require.Equal(t, []string{"extra"}, report.Missing)

	repaired, err := f.client.ReconcileOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, repaired.Items, 3)

	report, err = f.client.CheckConsistency(ctx, created.ID)
	require.NoError(t, err)
	require.True(t, report.InSync)
}

func TestOrderService_ErrorMapping(t *testing.T) {
	f := newFixture(t, false)
	ctx := testContext(t)

	_, err := f.client.CreateOrder(ctx, api.CreateOrderRequest{Items: []api.ItemRequest{{ProductID: "prod1", Quantity: 1}}})
	requireCode(t, err, codes.InvalidArgument)

	_, err = f.client.CreateOrder(ctx, api.CreateOrderRequest{CustomerID: "cust1", Items: []api.ItemRequest{{ProductID: "ghost", Quantity: 1}}})
	requireCode(t, err, codes.FailedPrecondition)

	_, err = f.client.GetOrder(ctx, "")
	requireCode(t, err, codes.InvalidArgument)

	_, err = f.client.GetOrder(ctx, "missing")
	requireCode(t, err, codes.NotFound)

	explicit := laptopAndMonitors()
	explicit.ID = "ord-fixed"
	_, err = f.client.CreateOrder(ctx, explicit)
	require.NoError(t, err)
	_, err = f.client.CreateOrder(ctx, explicit)
	requireCode(t, err, codes.AlreadyExists)
}

func TestOrderService_CreateOrderIdempotency(t *testing.T) {
	f := newFixture(t, true)
	ctx := testContext(t)

	_, err := f.client.CreateOrder(ctx, laptopAndMonitors())
	requireCode(t, err, codes.InvalidArgument)

	keyed := grpcsvc.WithIdempotencyKey(ctx, "key-1")
	first, err := f.client.CreateOrder(keyed, laptopAndMonitors())
	require.NoError(t, err)

	replayed, err := f.client.CreateOrder(keyed, laptopAndMonitors())
	require.NoError(t, err)
	require.Equal(t, first.ID, replayed.ID)

	list, err := f.client.ListOrders(ctx, "")
	require.NoError(t, err)
	require.Equal(t, 1, list.Count, "replay must not create a second order")

	different := laptopAndMonitors()
	different.CustomerID = "cust2"
	_, err = f.client.CreateOrder(keyed, different)
	requireCode(t, err, codes.AlreadyExists)
}

func TestOrderService_IdempotencyReplaysFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := grpcsvc.WithIdempotencyKey(testContext(t), "key-bad")

	bad := api.CreateOrderRequest{CustomerID: "cust1", Items: []api.ItemRequest{{ProductID: "ghost", Quantity: 1}}}
	_, err := f.client.CreateOrder(ctx, bad)
	requireCode(t, err, codes.FailedPrecondition)

	// тот же запрос получает закэшированную ошибку
	_, err = f.client.CreateOrder(ctx, bad)
	requireCode(t, err, codes.FailedPrecondition)
}
