package api

import (
	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/service/orders"
)

// Header возвращает заголовок и позиции нового заказа.
func (r CreateOrderRequest) Header() (domain.OrderHeader, []domain.ItemInput) {
	header := domain.OrderHeader{
		ID:              r.ID,
		CustomerID:      r.CustomerID,
		CustomerName:    r.CustomerName,
		CustomerEmail:   r.CustomerEmail,
		ShippingAddress: r.ShippingAddress,
		Status:          domain.OrderStatus(r.Status),
		SupplierID:      r.SupplierID,
	}
	if r.CreatedAt != nil {
		header.CreatedAt = r.CreatedAt.UTC()
	}
	return header, itemInputs(r.Items)
}

// Patch возвращает патч заголовка и, если items передан, полную замену позиций.
func (r UpdateOrderRequest) Patch() (domain.OrderPatch, *domain.ItemsReplacement) {
	patch := domain.OrderPatch{
		CustomerID:      r.CustomerID,
		CustomerName:    r.CustomerName,
		CustomerEmail:   r.CustomerEmail,
		ShippingAddress: r.ShippingAddress,
		SupplierID:      r.SupplierID,
		CreatedAt:       r.CreatedAt,
	}
	if r.Status != nil {
		status := domain.OrderStatus(*r.Status)
		patch.Status = &status
	}

	if r.Items == nil {
		return patch, nil
	}
	return patch, &domain.ItemsReplacement{Items: itemInputs(*r.Items)}
}

func itemInputs(items []ItemRequest) []domain.ItemInput {
	inputs := make([]domain.ItemInput, 0, len(items))
	for _, item := range items {
		in := domain.ItemInput{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.UnitPrice != nil {
			price := *item.UnitPrice
			in.UnitPrice = &price
		}
		inputs = append(inputs, in)
	}
	return inputs
}

func FromLineItem(item domain.LineItem) LineItem {
	return LineItem{
		ID:        item.ID,
		OrderID:   item.OrderID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
		UnitPrice: item.UnitPrice,
		Subtotal:  item.Subtotal().StringFixed(2),
		Position:  item.Position,
		CreatedAt: item.CreatedAt.UTC(),
	}
}

// FromLineItems никогда не возвращает nil.
func FromLineItems(items []domain.LineItem) []LineItem {
	result := make([]LineItem, 0, len(items))
	for _, item := range items {
		result = append(result, FromLineItem(item))
	}
	return result
}

func FromOrder(order domain.Order) Order {
	return Order{
		ID:              order.ID,
		CustomerID:      order.CustomerID,
		CustomerName:    order.CustomerName,
		CustomerEmail:   order.CustomerEmail,
		ShippingAddress: order.ShippingAddress,
		Status:          string(order.Status),
		SupplierID:      order.SupplierID,
		Items:           FromLineItems(order.Items),
		Total:           order.Total().StringFixed(2),
		CreatedAt:       order.CreatedAt.UTC(),
		UpdatedAt:       order.UpdatedAt.UTC(),
	}
}

func FromOrders(list []domain.Order) OrderList {
	result := OrderList{Orders: make([]Order, 0, len(list)), Count: len(list)}
	for _, order := range list {
		result.Orders = append(result.Orders, FromOrder(order))
	}
	return result
}

func FromDriftReport(report orders.DriftReport) DriftReport {
	return DriftReport{
		OrderID:       report.OrderID,
		InSync:        report.InSync(),
		SnapshotCount: report.SnapshotCount,
		StoreCount:    report.StoreCount,
		Missing:       nonNil(report.Missing),
		Stale:         nonNil(report.Stale),
		Changed:       nonNil(report.Changed),
		CheckedAt:     report.CheckedAt.UTC(),
	}
}

func FromSummary(summary map[domain.OrderStatus]int) Stats {
	stats := Stats{ByStatus: make(map[string]int, len(summary))}
	for status, count := range summary {
		stats.ByStatus[string(status)] = count
		stats.Total += count
	}
	return stats
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
