package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/memory"
)

var errStoreDown = errors.New("store is down")

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type flakyItems struct {
	domain.LineItemRepository
	failSaveAll error
	failDelete  error
	failFind    error
}

func (f *flakyItems) SaveAll(ctx context.Context, items []domain.LineItem) ([]domain.LineItem, error) {
	if f.failSaveAll != nil {
		return nil, f.failSaveAll
	}
	return f.LineItemRepository.SaveAll(ctx, items)
}

func (f *flakyItems) DeleteByOrderID(ctx context.Context, orderID string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.LineItemRepository.DeleteByOrderID(ctx, orderID)
}

func (f *flakyItems) FindByOrderID(ctx context.Context, orderID string) ([]domain.LineItem, error) {
	if f.failFind != nil {
		return nil, f.failFind
	}
	return f.LineItemRepository.FindByOrderID(ctx, orderID)
}

type flakyOrders struct {
	domain.OrderRepository
	failSave   error
	failDelete error
}

func (f *flakyOrders) Save(ctx context.Context, order domain.Order) (domain.Order, error) {
	if f.failSave != nil {
		return domain.Order{}, f.failSave
	}
	return f.OrderRepository.Save(ctx, order)
}

func (f *flakyOrders) DeleteByID(ctx context.Context, id string) error {
	if f.failDelete != nil {
		return f.failDelete
	}
	return f.OrderRepository.DeleteByID(ctx, id)
}

type brokenOutbox struct {
	domain.OutboxRepository
}

func (brokenOutbox) Enqueue(context.Context, domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errStoreDown
}

type harness struct {
	engine  *orders.Engine
	orders  *flakyOrders
	items   *flakyItems
	catalog domain.ProductRepository
	outbox  *memory.OutboxRepository
}

func newHarness(t *testing.T, opts ...orders.Option) *harness {
	t.Helper()

	h := &harness{
		orders: &flakyOrders{OrderRepository: memory.NewOrderRepository()},
		items:  &flakyItems{LineItemRepository: memory.NewLineItemRepository()},
		catalog: memory.NewProductRepository(
			domain.Product{ID: "prod1", Name: "Laptop", Price: decimal.RequireFromString("79.99")},
			domain.Product{ID: "prod2", Name: "Monitor", Price: decimal.RequireFromString("299.99")},
		),
		outbox: memory.NewOutboxRepository(),
	}

	var seq atomic.Int64
	base := []orders.Option{
		orders.WithClock(func() time.Time { return fixedNow }),
		orders.WithIDGenerator(func() string { return fmt.Sprintf("id-%d", seq.Add(1)) }),
		orders.WithOutbox(h.outbox),
	}
	engine, err := orders.NewEngine(h.orders, h.items, h.catalog, append(base, opts...)...)
	require.NoError(t, err)
	h.engine = engine
	return h
}

func price(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func requireNoDrift(t *testing.T, h *harness, id string) {
	t.Helper()
	order, err := h.engine.GetOrder(context.Background(), id)
	require.NoError(t, err)
	items, err := h.engine.GetOrderItems(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, order.Items, len(items), "snapshot and store differ:\n%s", spew.Sdump(order.Items, items))

	report, err := h.engine.CheckConsistency(context.Background(), id)
	require.NoError(t, err)
	require.True(t, report.InSync(), spew.Sdump(report))
}

func TestNewEngine_RequiresRepositories(t *testing.T) {
	_, err := orders.NewEngine(nil, memory.NewLineItemRepository(), nil)
	require.Error(t, err)
	_, err = orders.NewEngine(memory.NewOrderRepository(), nil, nil)
	require.Error(t, err)
}

func TestCreateOrder_ResolvesCatalogPrice(t *testing.T) {
	h := newHarness(t)

	order, err := h.engine.CreateOrder(context.Background(),
		domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 2}},
	)
	require.NoError(t, err)

	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Equal(t, fixedNow, order.CreatedAt)
	require.Len(t, order.Items, 1)
	require.Equal(t, int32(2), order.Items[0].Quantity)
	require.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("79.99")))
	require.Equal(t, order.ID, order.Items[0].OrderID)
	require.Equal(t, "159.98", order.Total().StringFixed(2))

	requireNoDrift(t, h, order.ID)
}

func TestCreateOrder_KeepsGivenPriceAndAllocatesItemIDs(t *testing.T) {
	h := newHarness(t)

	order, err := h.engine.CreateOrder(context.Background(),
		domain.OrderHeader{CustomerID: "cust1", Status: domain.OrderStatusProcessing},
		[]domain.ItemInput{
			{ID: "client-placeholder", ProductID: "prod1", Quantity: 1, UnitPrice: price("50.00")},
			{ID: "client-placeholder", ProductID: "prod2", Quantity: 3},
		},
	)
	require.NoError(t, err)

	require.Equal(t, domain.OrderStatusProcessing, order.Status)
	require.Len(t, order.Items, 2)
	require.True(t, order.Items[0].UnitPrice.Equal(decimal.RequireFromString("50")))
	require.True(t, order.Items[1].UnitPrice.Equal(decimal.RequireFromString("299.99")))
	require.NotEqual(t, "client-placeholder", order.Items[0].ID)
	require.NotEqual(t, order.Items[0].ID, order.Items[1].ID)
	require.Equal(t, 0, order.Items[0].Position)
	require.Equal(t, 1, order.Items[1].Position)
}

func TestCreateOrder_WithoutItems(t *testing.T) {
	h := newHarness(t)

	order, err := h.engine.CreateOrder(context.Background(), domain.OrderHeader{CustomerID: "cust1"}, nil)
	require.NoError(t, err)
	require.NotNil(t, order.Items)
	require.Empty(t, order.Items)
}

func TestCreateOrder_CatalogFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.CreateOrder(ctx,
		domain.OrderHeader{ID: "ord-x", CustomerID: "cust1"},
		[]domain.ItemInput{
			{ProductID: "prod1", Quantity: 1},
			{ProductID: "unknown", Quantity: 1},
		},
	)
	require.True(t, domain.IsCatalogLookup(err), "got %v", err)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	var lookupErr *domain.CatalogLookupError
	require.ErrorAs(t, err, &lookupErr)
	require.Equal(t, "unknown", lookupErr.ProductID)

	all, err := h.engine.ListOrders(ctx)
	require.NoError(t, err)
	require.Empty(t, all)

	items, err := h.engine.GetOrderItems(ctx, "ord-x")
	require.NoError(t, err)
	require.Empty(t, items)
	require.Empty(t, h.outbox.AllPending())
}

func TestCreateOrder_WithoutCatalogRequiresPrices(t *testing.T) {
	engine, err := orders.NewEngine(memory.NewOrderRepository(), memory.NewLineItemRepository(), nil)
	require.NoError(t, err)

	_, err = engine.CreateOrder(context.Background(),
		domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}},
	)
	require.True(t, domain.IsCatalogLookup(err))

	order, err := engine.CreateOrder(context.Background(),
		domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1, UnitPrice: price("1.50")}},
	)
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
}

func TestCreateOrder_Validation(t *testing.T) {
	tests := []struct {
		name   string
		header domain.OrderHeader
		items  []domain.ItemInput
		field  string
		cause  error
	}{
		{
			name:   "missing customer",
			header: domain.OrderHeader{},
			field:  "customer_id",
			cause:  domain.ErrCustomerRequired,
		},
		{
			name:   "unsupported status",
			header: domain.OrderHeader{CustomerID: "cust1", Status: "lost"},
			field:  "status",
			cause:  domain.ErrStatusInvalid,
		},
		{
			name:   "zero quantity",
			header: domain.OrderHeader{CustomerID: "cust1"},
			items:  []domain.ItemInput{{ProductID: "prod1", Quantity: 1}, {ProductID: "prod1", Quantity: 0}},
			field:  "items[1].quantity",
			cause:  domain.ErrItemQtyInvalid,
		},
		{
			name:   "missing product",
			header: domain.OrderHeader{CustomerID: "cust1"},
			items:  []domain.ItemInput{{Quantity: 1}},
			field:  "items[0].product_id",
			cause:  domain.ErrProductRequired,
		},
		{
			name:   "negative price",
			header: domain.OrderHeader{CustomerID: "cust1"},
			items:  []domain.ItemInput{{ProductID: "prod1", Quantity: 1, UnitPrice: price("-1")}},
			field:  "items[0].unit_price",
			cause:  domain.ErrItemPriceInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.engine.CreateOrder(context.Background(), tt.header, tt.items)
			require.True(t, domain.IsValidation(err), "got %v", err)
			require.ErrorIs(t, err, tt.cause)

			var validation *domain.ValidationError
			require.ErrorAs(t, err, &validation)
			require.Equal(t, tt.field, validation.Field)

			all, err := h.engine.ListOrders(context.Background())
			require.NoError(t, err)
			require.Empty(t, all)
		})
	}
}

func TestCreateOrder_ZeroClockIsRejected(t *testing.T) {
	h := newHarness(t, orders.WithClock(func() time.Time { return time.Time{} }))

	_, err := h.engine.CreateOrder(context.Background(), domain.OrderHeader{CustomerID: "cust1"}, nil)
	require.ErrorIs(t, err, domain.ErrCreatedAtRequired)
}

func TestCreateOrder_ExplicitIDConflict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.CreateOrder(ctx, domain.OrderHeader{ID: "ord1", CustomerID: "cust1"}, nil)
	require.NoError(t, err)

	_, err = h.engine.CreateOrder(ctx, domain.OrderHeader{ID: "ord1", CustomerID: "cust2"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}})
	require.ErrorIs(t, err, domain.ErrOrderAlreadyExists)

	order, err := h.engine.GetOrder(ctx, "ord1")
	require.NoError(t, err)
	require.Equal(t, "cust1", order.CustomerID)
	require.Empty(t, order.Items)
}

func TestCreateOrder_ExplicitIDDropsOrphanItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.items.LineItemRepository.Save(ctx, domain.LineItem{ID: "orphan", OrderID: "ord9", ProductID: "prod1", Quantity: 1})
	require.NoError(t, err)

	order, err := h.engine.CreateOrder(ctx, domain.OrderHeader{ID: "ord9", CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod2", Quantity: 1}})
	require.NoError(t, err)
	require.Len(t, order.Items, 1)
	require.Equal(t, "prod2", order.Items[0].ProductID)
}

func TestCreateOrder_PersistenceSteps(t *testing.T) {
	tests := []struct {
		name   string
		inject func(h *harness)
		step   string
	}{
		{name: "items", inject: func(h *harness) { h.items.failSaveAll = errStoreDown }, step: orders.StepSaveItems},
		{name: "reload", inject: func(h *harness) { h.items.failFind = errStoreDown }, step: orders.StepLoadItems},
		{name: "header", inject: func(h *harness) { h.orders.failSave = errStoreDown }, step: orders.StepSaveHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			tt.inject(h)

			_, err := h.engine.CreateOrder(context.Background(), domain.OrderHeader{CustomerID: "cust1"},
				[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}})
			require.True(t, domain.IsPersistence(err))
			require.ErrorIs(t, err, errStoreDown)

			var persistErr *domain.PersistenceError
			require.ErrorAs(t, err, &persistErr)
			require.Equal(t, tt.step, persistErr.Step)
			require.Equal(t, orders.OpCreate, persistErr.Op)
		})
	}
}

func TestCreateOrder_HeaderFailureLeavesItemsAuthoritative(t *testing.T) {
	h := newHarness(t)
	h.orders.failSave = errStoreDown

	_, err := h.engine.CreateOrder(context.Background(), domain.OrderHeader{ID: "ord1", CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}})
	require.Error(t, err)

	// позиции уже записаны, заголовка нет
	items, err := h.engine.GetOrderItems(context.Background(), "ord1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, err = h.engine.GetOrder(context.Background(), "ord1")
	require.True(t, domain.IsNotFound(err))
}

func TestGetOrder_NotFound(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.GetOrder(context.Background(), "missing")
	require.True(t, domain.IsNotFound(err))

	_, err = h.engine.GetOrder(context.Background(), "")
	require.True(t, domain.IsValidation(err))
}

func TestGetOrder_ReturnsIsolatedSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}})
	require.NoError(t, err)

	fetched, err := h.engine.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	fetched.Items[0].Quantity = 42

	items, err := h.engine.GetOrderItems(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), items[0].Quantity)

	again, err := h.engine.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, int32(1), again.Items[0].Quantity)
}

func TestListOrders_NormalizesMissingSnapshot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.orders.OrderRepository.Save(ctx, domain.Order{ID: "legacy", CustomerID: "cust1", Status: domain.OrderStatusPending, CreatedAt: fixedNow})
	require.NoError(t, err)
	_, err = h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust2"}, nil)
	require.NoError(t, err)

	all, err := h.engine.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, order := range all {
		require.NotNil(t, order.Items, "order %s has nil items", order.ID)
	}

	legacy, err := h.engine.GetOrder(ctx, "legacy")
	require.NoError(t, err)
	require.NotNil(t, legacy.Items)
}

func TestUpdateOrder_PatchWithoutReplacementKeepsItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}, {ProductID: "prod2", Quantity: 2}})
	require.NoError(t, err)
	before, err := h.engine.GetOrderItems(ctx, created.ID)
	require.NoError(t, err)

	shipped := domain.OrderStatusShipped
	updated, err := h.engine.UpdateOrder(ctx, created.ID, domain.OrderPatch{Status: &shipped}, nil)
	require.NoError(t, err)

	require.Equal(t, domain.OrderStatusShipped, updated.Status)
	require.Equal(t, "cust1", updated.CustomerID)
	require.Equal(t, created.Items, updated.Items)

	after, err := h.engine.GetOrderItems(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestUpdateOrder_EmptyReplacementClearsItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}, {ProductID: "prod2", Quantity: 2}})
	require.NoError(t, err)

	updated, err := h.engine.UpdateOrder(ctx, created.ID, domain.OrderPatch{}, &domain.ItemsReplacement{})
	require.NoError(t, err)
	require.NotNil(t, updated.Items)
	require.Empty(t, updated.Items)

	items, err := h.engine.GetOrderItems(ctx, created.ID)
	require.NoError(t, err)
	require.Empty(t, items)
	requireNoDrift(t, h, created.ID)
}

func TestUpdateOrder_ReplacementInsertsFreshItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}})
	require.NoError(t, err)

	updated, err := h.engine.UpdateOrder(ctx, created.ID, domain.OrderPatch{}, &domain.ItemsReplacement{
		Items: []domain.ItemInput{
			{ID: created.Items[0].ID, ProductID: "prod2", Quantity: 4, UnitPrice: price("10.00")},
			{ProductID: "prod9", Quantity: 1, UnitPrice: price("0")},
		},
	})
	require.NoError(t, err)

	require.Len(t, updated.Items, 2)
	require.NotEqual(t, created.Items[0].ID, updated.Items[0].ID)
	// цена сохраняется как передана, каталог не используется
	require.True(t, updated.Items[0].UnitPrice.Equal(decimal.RequireFromString("10")))
	require.Equal(t, "prod9", updated.Items[1].ProductID)
	for _, item := range updated.Items {
		require.Equal(t, created.ID, item.OrderID)
	}
	requireNoDrift(t, h, created.ID)
}

func TestUpdateOrder_ReplacementRequiresPrice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}})
	require.NoError(t, err)

	_, err = h.engine.UpdateOrder(ctx, created.ID, domain.OrderPatch{}, &domain.ItemsReplacement{
		Items: []domain.ItemInput{{ProductID: "prod1", Quantity: 1}},
	})
	require.ErrorIs(t, err, domain.ErrItemPriceRequired)
	require.True(t, domain.IsValidation(err))

	items, err := h.engine.GetOrderItems(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestUpdateOrder_Errors(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.UpdateOrder(ctx, "missing", domain.OrderPatch{}, nil)
	require.True(t, domain.IsNotFound(err))

	blank := "  "
	_, err = h.engine.UpdateOrder(ctx, "missing", domain.OrderPatch{CustomerID: &blank}, nil)
	require.True(t, domain.IsValidation(err), "validation must precede lookup, got %v", err)

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}})
	require.NoError(t, err)

	h.items.failDelete = errStoreDown
	_, err = h.engine.UpdateOrder(ctx, created.ID, domain.OrderPatch{}, &domain.ItemsReplacement{})
	var persistErr *domain.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.Equal(t, orders.StepDeleteItems, persistErr.Step)

	h.items.failDelete = nil
	h.orders.failSave = errStoreDown
	_, err = h.engine.UpdateOrder(ctx, created.ID, domain.OrderPatch{}, nil)
	require.ErrorAs(t, err, &persistErr)
	require.Equal(t, orders.StepSaveHeader, persistErr.Step)
}

func TestUpdateOrder_PermissiveStatusTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1", Status: domain.OrderStatusDelivered}, nil)
	require.NoError(t, err)

	pending := domain.OrderStatusPending
	updated, err := h.engine.UpdateOrder(ctx, created.ID, domain.OrderPatch{Status: &pending}, nil)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, updated.Status)
}

func TestDeleteOrder_RemovesHeaderAndItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}, {ProductID: "prod2", Quantity: 1}})
	require.NoError(t, err)

	require.NoError(t, h.engine.DeleteOrder(ctx, created.ID))

	items, err := h.engine.GetOrderItems(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, items)
	require.Empty(t, items)

	_, err = h.engine.GetOrder(ctx, created.ID)
	require.True(t, domain.IsNotFound(err))
	require.True(t, domain.IsNotFound(h.engine.DeleteOrder(ctx, created.ID)))
}

func TestDeleteOrder_StepFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}})
	require.NoError(t, err)

	h.items.failDelete = errStoreDown
	err = h.engine.DeleteOrder(ctx, created.ID)
	var persistErr *domain.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	require.Equal(t, orders.StepDeleteItems, persistErr.Step)
	_, err = h.engine.GetOrder(ctx, created.ID)
	require.NoError(t, err, "header must survive a failed item delete")

	h.items.failDelete = nil
	h.orders.failDelete = errStoreDown
	err = h.engine.DeleteOrder(ctx, created.ID)
	require.ErrorAs(t, err, &persistErr)
	require.Equal(t, orders.StepDeleteHeader, persistErr.Step)

	// без отката: позиции уже удалены, заголовок остался со старым снимком
	report, err := h.engine.CheckConsistency(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, report.InSync())
	require.Equal(t, []string{created.Items[0].ID}, report.Stale)
}

func TestCheckConsistencyAndReconcile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 1}, {ProductID: "prod2", Quantity: 1}})
	require.NoError(t, err)

	// запись в обход движка
	changed := created.Items[0]
	changed.Quantity = 5
	_, err = h.items.LineItemRepository.Save(ctx, changed)
	require.NoError(t, err)
	_, err = h.items.LineItemRepository.Save(ctx, domain.LineItem{ID: "extra", OrderID: created.ID, ProductID: "prod1", Quantity: 1, Position: 2})
	require.NoError(t, err)

	report, err := h.engine.CheckConsistency(ctx, created.ID)
	require.NoError(t, err)
	require.False(t, report.InSync())
	require.Equal(t, []string{changed.ID}, report.Changed)
	require.Equal(t, []string{"extra"}, report.Missing)
	require.Empty(t, report.Stale)
	require.Equal(t, 2, report.SnapshotCount)
	require.Equal(t, 3, report.StoreCount)

	// быстрый путь чтения не видит изменения до реконсиляции
	stale, err := h.engine.GetOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, stale.Items, 2)

	reconciled, err := h.engine.ReconcileOrder(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, reconciled.Items, 3)
	require.Equal(t, int32(5), reconciled.Items[0].Quantity)
	requireNoDrift(t, h, created.ID)

	_, err = h.engine.ReconcileOrder(ctx, "missing")
	require.True(t, domain.IsNotFound(err))
}

func TestEngine_EnqueuesOrderEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1"},
		[]domain.ItemInput{{ProductID: "prod1", Quantity: 2}})
	require.NoError(t, err)
	status := domain.OrderStatusShipped
	_, err = h.engine.UpdateOrder(ctx, created.ID, domain.OrderPatch{Status: &status}, nil)
	require.NoError(t, err)
	_, err = h.engine.ReconcileOrder(ctx, created.ID)
	require.NoError(t, err)
	require.NoError(t, h.engine.DeleteOrder(ctx, created.ID))

	pending := h.outbox.AllPending()
	require.Len(t, pending, 4)

	types := make([]string, 0, len(pending))
	for _, msg := range pending {
		require.Equal(t, domain.AggregateTypeOrder, msg.AggregateType)
		require.Equal(t, created.ID, msg.AggregateID)
		types = append(types, msg.EventType)
	}
	require.Equal(t, []string{
		domain.EventOrderCreated,
		domain.EventOrderUpdated,
		domain.EventOrderReconciled,
		domain.EventOrderDeleted,
	}, types)

	var event orders.OrderEvent
	require.NoError(t, json.Unmarshal(pending[0].Payload, &event))
	require.Equal(t, "159.98", event.Total)
	require.Equal(t, 1, event.ItemCount)
	require.Equal(t, domain.OrderStatusPending, event.Status)
}

func TestEngine_OutboxFailureDoesNotFailOperation(t *testing.T) {
	h := newHarness(t, orders.WithOutbox(brokenOutbox{}))

	order, err := h.engine.CreateOrder(context.Background(), domain.OrderHeader{CustomerID: "cust1"}, nil)
	require.NoError(t, err)
	require.NotEmpty(t, order.ID)
}

func TestStatusReporting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, status := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusShipped, domain.OrderStatusShipped} {
		_, err := h.engine.CreateOrder(ctx, domain.OrderHeader{CustomerID: "cust1", Status: status}, nil)
		require.NoError(t, err)
	}

	shipped, err := h.engine.ListOrdersByStatus(ctx, domain.OrderStatusShipped)
	require.NoError(t, err)
	require.Len(t, shipped, 2)

	count, err := h.engine.CountByStatus(ctx, domain.OrderStatusPending)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	summary, err := h.engine.StatusSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, len(domain.OrderStatuses()))
	require.Equal(t, 2, summary[domain.OrderStatusShipped])
	require.Zero(t, summary[domain.OrderStatusDelivered])

	_, err = h.engine.CountByStatus(ctx, "lost")
	require.True(t, domain.IsValidation(err))
}

func TestGetOrderItems_RequiresID(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.GetOrderItems(context.Background(), "")
	require.True(t, domain.IsValidation(err))

	h.items.failFind = errStoreDown
	_, err = h.engine.GetOrderItems(context.Background(), "ord1")
	require.True(t, domain.IsPersistence(err))
}
