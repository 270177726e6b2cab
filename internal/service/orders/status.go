package orders

import (
	"context"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// ListOrdersByStatus возвращает заказы с указанным статусом.
func (e *Engine) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	if !status.Valid() {
		return nil, domain.NewValidationError("status", domain.ErrStatusInvalid)
	}
	orders, err := e.orders.FindByStatus(ctx, status)
	if err != nil {
		return nil, &domain.PersistenceError{Op: OpList, Step: StepLoadOrder, Err: err}
	}
	return normalizeAll(orders), nil
}

func (e *Engine) CountByStatus(ctx context.Context, status domain.OrderStatus) (int, error) {
	if !status.Valid() {
		return 0, domain.NewValidationError("status", domain.ErrStatusInvalid)
	}
	count, err := e.orders.CountByStatus(ctx, status)
	if err != nil {
		return 0, &domain.PersistenceError{Op: OpList, Step: StepLoadOrder, Err: err}
	}
	return count, nil
}

// StatusSummary возвращает число заказов по каждому поддерживаемому статусу, включая нулевые.
func (e *Engine) StatusSummary(ctx context.Context) (map[domain.OrderStatus]int, error) {
	summary := make(map[domain.OrderStatus]int, len(domain.OrderStatuses()))
	for _, status := range domain.OrderStatuses() {
		count, err := e.CountByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		summary[status] = count
	}
	return summary, nil
}
