package orders

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// UpdateOrder применяет патч заголовка. replacement == nil оставляет позиции и снимок как есть,
// иначе позиции заказа полностью заменяются без обращения к каталогу.
func (e *Engine) UpdateOrder(ctx context.Context, id string, patch domain.OrderPatch, replacement *domain.ItemsReplacement) (domain.Order, error) {
	defer e.metrics.ObserveOperation(OpUpdate)()

	order, err := e.updateOrder(ctx, id, patch, replacement)
	if err != nil {
		e.recordFailure(OpUpdate, err)
		return domain.Order{}, err
	}

	replaced := replacement != nil
	e.metrics.RecordOrderUpdated(replaced, len(order.Items))
	e.logger.WithFields(log.Fields{
		"order_id":       order.ID,
		"items_replaced": replaced,
		"status":         order.Status,
	}).Info("order updated")
	e.publish(ctx, domain.EventOrderUpdated, order)
	return order, nil
}

func (e *Engine) updateOrder(ctx context.Context, id string, patch domain.OrderPatch, replacement *domain.ItemsReplacement) (domain.Order, error) {
	if err := requireOrderID(id); err != nil {
		return domain.Order{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Order{}, err
	}
	if replacement != nil {
		if err := validateReplacement(replacement.Items); err != nil {
			return domain.Order{}, err
		}
	}

	order, err := e.loadOrder(ctx, OpUpdate, id)
	if err != nil {
		return domain.Order{}, err
	}

	now := e.timestamp()
	patch.Apply(&order)
	order.UpdatedAt = now

	if replacement == nil {
		saved, err := e.orders.Save(ctx, order)
		if err != nil {
			return domain.Order{}, &domain.PersistenceError{Op: OpUpdate, Step: StepSaveHeader, OrderID: id, Err: err}
		}
		return saved.WithNormalizedItems(), nil
	}

	prices := make([]decimal.Decimal, len(replacement.Items))
	for i, in := range replacement.Items {
		prices[i] = *in.UnitPrice
	}
	writes := &itemWrite{clear: true, items: e.buildItems(id, replacement.Items, prices, now)}
	return e.reconcile(ctx, OpUpdate, order, writes)
}

// validateReplacement требует явную цену: при замене каталог не используется.
func validateReplacement(inputs []domain.ItemInput) error {
	for i, in := range inputs {
		if err := in.Validate(); err != nil {
			return itemFieldError(i, err)
		}
		if in.UnitPrice == nil {
			return domain.NewValidationError(fmt.Sprintf("items[%d].unit_price", i), domain.ErrItemPriceRequired)
		}
	}
	return nil
}
