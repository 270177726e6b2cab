// Package api описывает JSON-представление заказов, общее для REST, gRPC и MCP.
package api

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
)

// Orders: операции движка, доступные транспортам.
type Orders interface {
	CreateOrder(ctx context.Context, header domain.OrderHeader, items []domain.ItemInput) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch, replacement *domain.ItemsReplacement) (domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	GetOrderItems(ctx context.Context, orderID string) ([]domain.LineItem, error)
	CheckConsistency(ctx context.Context, id string) (orders.DriftReport, error)
	ReconcileOrder(ctx context.Context, id string) (domain.Order, error)
	StatusSummary(ctx context.Context) (map[domain.OrderStatus]int, error)
}

var _ Orders = (*orders.Engine)(nil)

// ItemRequest: позиция во входящем запросе. Без unitPrice цена берётся из каталога.
type ItemRequest struct {
	ProductID string           `json:"productId"`
	Quantity  int32            `json:"quantity"`
	UnitPrice *decimal.Decimal `json:"unitPrice,omitempty"`
}

type CreateOrderRequest struct {
	ID              string        `json:"id,omitempty"`
	CustomerID      string        `json:"customerId"`
	CustomerName    string        `json:"customerName,omitempty"`
	CustomerEmail   string        `json:"customerEmail,omitempty"`
	ShippingAddress string        `json:"shippingAddress,omitempty"`
	Status          string        `json:"status,omitempty"`
	SupplierID      string        `json:"supplierId,omitempty"`
	CreatedAt       *time.Time    `json:"createdAt,omitempty"`
	Items           []ItemRequest `json:"items"`
}

// UpdateOrderRequest: частичное обновление.
// Items == nil: позиции не трогаются; пустой срез удаляет все позиции.
type UpdateOrderRequest struct {
	CustomerID      *string        `json:"customerId,omitempty"`
	CustomerName    *string        `json:"customerName,omitempty"`
	CustomerEmail   *string        `json:"customerEmail,omitempty"`
	ShippingAddress *string        `json:"shippingAddress,omitempty"`
	Status          *string        `json:"status,omitempty"`
	SupplierID      *string        `json:"supplierId,omitempty"`
	CreatedAt       *time.Time     `json:"createdAt,omitempty"`
	Items           *[]ItemRequest `json:"items,omitempty"`
}

type LineItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	ProductID string          `json:"productId"`
	Quantity  int32           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Subtotal  string          `json:"subtotal"`
	Position  int             `json:"position"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Order struct {
	ID              string     `json:"id"`
	CustomerID      string     `json:"customerId"`
	CustomerName    string     `json:"customerName,omitempty"`
	CustomerEmail   string     `json:"customerEmail,omitempty"`
	ShippingAddress string     `json:"shippingAddress,omitempty"`
	Status          string     `json:"status"`
	SupplierID      string     `json:"supplierId,omitempty"`
	Items           []LineItem `json:"items"`
	Total           string     `json:"total"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

type OrderList struct {
	Orders []Order `json:"orders"`
	Count  int     `json:"count"`
}

type ItemList struct {
	OrderID string     `json:"orderId"`
	Items   []LineItem `json:"items"`
}

type DriftReport struct {
	OrderID       string    `json:"orderId"`
	InSync        bool      `json:"inSync"`
	SnapshotCount int       `json:"snapshotCount"`
	StoreCount    int       `json:"storeCount"`
	Missing       []string  `json:"missing"`
	Stale         []string  `json:"stale"`
	Changed       []string  `json:"changed"`
	CheckedAt     time.Time `json:"checkedAt"`
}

type Stats struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
}

// ErrorResponse: тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
