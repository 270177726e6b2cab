package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/storage/sqlite"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleOrder(id string, status domain.OrderStatus, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:              id,
		CustomerID:      "cust1",
		CustomerName:    "Ivan",
		CustomerEmail:   "ivan@example.com",
		ShippingAddress: "Moscow",
		Status:          status,
		SupplierID:      "sup1",
		Items: []domain.LineItem{
			{ID: id + "-1", OrderID: id, ProductID: "prod1", Quantity: 2, UnitPrice: decimal.RequireFromString("79.99"), CreatedAt: createdAt},
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestOpen_FileDatabaseSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "orders.db")

	store, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Ping(ctx))

	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err = sqlite.NewOrderRepository(store).Save(ctx, sampleOrder("ord1", domain.OrderStatusPending, created))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := sqlite.NewOrderRepository(reopened).FindByID(ctx, "ord1")
	require.NoError(t, err)
	require.Equal(t, "cust1", got.CustomerID)
}

func TestStore_NilIsSafe(t *testing.T) {
	var store *sqlite.Store
	require.Error(t, store.Ping(context.Background()))
	require.NoError(t, store.Close())
}

func TestOrderRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewOrderRepository(openStore(t))
	created := time.Date(2025, 3, 1, 10, 0, 0, 123456789, time.UTC)
	order := sampleOrder("ord1", domain.OrderStatusPending, created)

	_, err := repo.Save(ctx, order)
	require.NoError(t, err)

	got, err := repo.FindByID(ctx, "ord1")
	require.NoError(t, err)
	require.Equal(t, order.ShippingAddress, got.ShippingAddress)
	require.True(t, got.CreatedAt.Equal(created))
	require.Len(t, got.Items, 1)
	require.True(t, got.Items[0].UnitPrice.Equal(decimal.RequireFromString("79.99")))
	require.True(t, got.Total().Equal(decimal.RequireFromString("159.98")))

	_, err = repo.FindByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestOrderRepository_SnapshotNullVersusEmpty(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewOrderRepository(openStore(t))
	now := time.Now().UTC()

	withNil := sampleOrder("ord-nil", domain.OrderStatusPending, now)
	withNil.Items = nil
	withEmpty := sampleOrder("ord-empty", domain.OrderStatusPending, now)
	withEmpty.Items = []domain.LineItem{}

	for _, o := range []domain.Order{withNil, withEmpty} {
		_, err := repo.Save(ctx, o)
		require.NoError(t, err)
	}

	got, err := repo.FindByID(ctx, "ord-nil")
	require.NoError(t, err)
	require.Nil(t, got.Items)

	got, err = repo.FindByID(ctx, "ord-empty")
	require.NoError(t, err)
	require.NotNil(t, got.Items)
	require.Empty(t, got.Items)
}

func TestOrderRepository_StatusQueriesAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewOrderRepository(openStore(t))
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	for _, o := range []domain.Order{
		sampleOrder("ord2", domain.OrderStatusShipped, base.Add(time.Minute)),
		sampleOrder("ord1", domain.OrderStatusPending, base),
		sampleOrder("ord3", domain.OrderStatusShipped, base.Add(2*time.Minute)),
	} {
		_, err := repo.Save(ctx, o)
		require.NoError(t, err)
	}

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "ord1", all[0].ID)
	require.Equal(t, "ord3", all[2].ID)

	shipped, err := repo.FindByStatus(ctx, domain.OrderStatusShipped)
	require.NoError(t, err)
	require.Len(t, shipped, 2)

	count, err := repo.CountByStatus(ctx, domain.OrderStatusPending)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// upsert перезаписывает заголовок целиком
	updated := sampleOrder("ord1", domain.OrderStatusDelivered, base)
	_, err = repo.Save(ctx, updated)
	require.NoError(t, err)
	count, err = repo.CountByStatus(ctx, domain.OrderStatusPending)
	require.NoError(t, err)
	require.Zero(t, count)

	require.NoError(t, repo.DeleteByID(ctx, "ord1"))
	require.ErrorIs(t, repo.DeleteByID(ctx, "ord1"), domain.ErrOrderNotFound)
}

func TestLineItemRepository_SaveAllFindDelete(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewLineItemRepository(openStore(t))
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := repo.SaveAll(ctx, []domain.LineItem{
		{ID: "b", OrderID: "ord1", ProductID: "prod2", Quantity: 2, UnitPrice: decimal.RequireFromString("299.99"), Position: 1, CreatedAt: now},
		{ID: "a", OrderID: "ord1", ProductID: "prod1", Quantity: 1, UnitPrice: decimal.RequireFromString("999.99"), Position: 0, CreatedAt: now},
		{ID: "c", OrderID: "ord2", ProductID: "prod3", Quantity: 3, UnitPrice: decimal.RequireFromString("89.99"), CreatedAt: now},
	})
	require.NoError(t, err)

	got, err := repo.FindByOrderID(ctx, "ord1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "b", got[1].ID)
	require.True(t, got[1].UnitPrice.Equal(decimal.RequireFromString("299.99")))
	require.True(t, got[1].CreatedAt.Equal(now))

	require.NoError(t, repo.DeleteByOrderID(ctx, "ord1"))
	got, err = repo.FindByOrderID(ctx, "ord1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)

	other, err := repo.FindByOrderID(ctx, "ord2")
	require.NoError(t, err)
	require.Len(t, other, 1)

	require.NoError(t, repo.DeleteByOrderID(ctx, "missing"))
}

func TestLineItemRepository_RejectsBatchWithoutOrderID(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewLineItemRepository(openStore(t))

	_, err := repo.SaveAll(ctx, []domain.LineItem{
		{ID: "a", OrderID: "ord1", ProductID: "prod1", Quantity: 1},
		{ID: "b", ProductID: "prod2", Quantity: 1},
	})
	require.ErrorIs(t, err, domain.ErrOrderIDRequired)

	got, err := repo.FindByOrderID(ctx, "ord1")
	require.NoError(t, err)
	require.Empty(t, got)

	_, err = repo.Save(ctx, domain.LineItem{ID: "x", ProductID: "prod1", Quantity: 1})
	require.ErrorIs(t, err, domain.ErrOrderIDRequired)
}

func TestProductRepository_UpsertAndPrice(t *testing.T) {
	ctx := context.Background()
	repo := sqlite.NewProductRepository(openStore(t))

	require.NoError(t, repo.Upsert(ctx, domain.Product{ID: "prod1", Name: "Laptop", Price: decimal.RequireFromString("999.99")}))

	price, err := repo.PriceOf(ctx, "prod1")
	require.NoError(t, err)
	require.True(t, price.Equal(decimal.RequireFromString("999.99")))

	require.NoError(t, repo.Upsert(ctx, domain.Product{ID: "prod1", Name: "Laptop", Price: decimal.RequireFromString("899.99")}))
	product, err := repo.FindByID(ctx, "prod1")
	require.NoError(t, err)
	require.Equal(t, "Laptop", product.Name)
	require.True(t, product.Price.Equal(decimal.RequireFromString("899.99")))

	_, err = repo.PriceOf(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.ErrorIs(t, repo.Upsert(ctx, domain.Product{}), domain.ErrProductRequired)
}
