// Package seed наполняет пустое хранилище демонстрационным каталогом и заказами.
// Повторный запуск ничего не меняет.
package seed

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// Orders: часть движка, нужная для загрузки заказов.
type Orders interface {
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	CreateOrder(ctx context.Context, header domain.OrderHeader, items []domain.ItemInput) (domain.Order, error)
}

type orderSeed struct {
	header domain.OrderHeader
	items  []domain.ItemInput
}

// Products возвращает демонстрационный каталог.
func Products() []domain.Product {
	return []domain.Product{
		{ID: "prod1", Name: "Laptop", Price: decimal.RequireFromString("999.99"), SupplierID: "sup1"},
		{ID: "prod2", Name: "Monitor", Price: decimal.RequireFromString("299.99"), SupplierID: "sup1"},
		{ID: "prod3", Name: "Keyboard", Price: decimal.RequireFromString("89.99"), SupplierID: "sup2"},
	}
}

func orders() []orderSeed {
	return []orderSeed{
		{
			header: domain.OrderHeader{ID: "ord1", CustomerID: "cust1", Status: domain.OrderStatusPending},
			items: []domain.ItemInput{
				{ProductID: "prod1", Quantity: 1},
				{ProductID: "prod2", Quantity: 2},
			},
		},
		{
			header: domain.OrderHeader{ID: "ord2", CustomerID: "cust2", Status: domain.OrderStatusShipped},
			items: []domain.ItemInput{
				{ProductID: "prod3", Quantity: 3},
			},
		},
	}
}

// Result: сколько записей создано и сколько уже существовало.
type Result struct {
	ProductsCreated int
	ProductsSkipped int
	OrdersCreated   int
	OrdersSkipped   int
}

// Seeder загружает каталог напрямую, а заказы через движок.
type Seeder struct {
	products domain.ProductRepository
	orders   Orders
	logger   *log.Entry
}

func NewSeeder(products domain.ProductRepository, orders Orders, logger *log.Entry) *Seeder {
	if logger == nil {
		logger = log.WithField("component", "seed")
	}
	return &Seeder{products: products, orders: orders, logger: logger}
}

// Run создаёт отсутствующие товары и заказы. Существующие записи не трогаются.
func (s *Seeder) Run(ctx context.Context) (Result, error) {
	var result Result

	for _, product := range Products() {
		_, err := s.products.FindByID(ctx, product.ID)
		switch {
		case err == nil:
			result.ProductsSkipped++
			continue
		case !errors.Is(err, domain.ErrProductNotFound):
			return result, fmt.Errorf("check product %s: %w", product.ID, err)
		}
		if err := s.products.Upsert(ctx, product); err != nil {
			return result, fmt.Errorf("seed product %s: %w", product.ID, err)
		}
		result.ProductsCreated++
	}

	for _, seed := range orders() {
		_, err := s.orders.GetOrder(ctx, seed.header.ID)
		switch {
		case err == nil:
			result.OrdersSkipped++
			continue
		case !domain.IsNotFound(err):
			return result, fmt.Errorf("check order %s: %w", seed.header.ID, err)
		}
		order, err := s.orders.CreateOrder(ctx, seed.header, seed.items)
		if err != nil {
			return result, fmt.Errorf("seed order %s: %w", seed.header.ID, err)
		}
		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"items":    len(order.Items),
			"total":    order.Total().StringFixed(2),
		}).Info("seed order created")
		result.OrdersCreated++
	}

	s.logger.WithFields(log.Fields{
		"products_created": result.ProductsCreated,
		"products_skipped": result.ProductsSkipped,
		"orders_created":   result.OrdersCreated,
		"orders_skipped":   result.OrdersSkipped,
	}).Info("seed finished")
	return result, nil
}
