package orders

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// DeleteOrder удаляет позиции заказа, затем заголовок. Откат не выполняется:
// PersistenceError.Step показывает, на каком шаге последовательность прервалась.
func (e *Engine) DeleteOrder(ctx context.Context, id string) error {
	defer e.metrics.ObserveOperation(OpDelete)()

	order, err := e.deleteOrder(ctx, id)
	if err != nil {
		e.recordFailure(OpDelete, err)
		return err
	}

	e.metrics.RecordOrderDeleted()
	e.logger.WithFields(log.Fields{
		"order_id": id,
		"items":    len(order.Items),
	}).Info("order deleted")
	e.publish(ctx, domain.EventOrderDeleted, order)
	return nil
}

func (e *Engine) deleteOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := e.loadOrder(ctx, OpDelete, id)
	if err != nil {
		return domain.Order{}, err
	}

	if err := e.items.DeleteByOrderID(ctx, id); err != nil {
		return domain.Order{}, &domain.PersistenceError{Op: OpDelete, Step: StepDeleteItems, OrderID: id, Err: err}
	}
	if err := e.orders.DeleteByID(ctx, id); err != nil {
		if domain.IsNotFound(err) {
			// заголовок удалён параллельным запросом
			return domain.Order{}, err
		}
		return domain.Order{}, &domain.PersistenceError{Op: OpDelete, Step: StepDeleteHeader, OrderID: id, Err: err}
	}
	return order.WithNormalizedItems(), nil
}
