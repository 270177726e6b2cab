package orders

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// OrderEvent: полезная нагрузка событий заказа в outbox.
type OrderEvent struct {
	OrderID    string             `json:"order_id"`
	CustomerID string             `json:"customer_id"`
	Status     domain.OrderStatus `json:"status"`
	ItemCount  int                `json:"item_count"`
	Total      string             `json:"total"`
	OccurredAt time.Time          `json:"occurred_at"`
}

// publish пишет событие в outbox. Ошибка записи не отменяет уже выполненную операцию.
func (e *Engine) publish(ctx context.Context, eventType string, order domain.Order) {
	if e.outbox == nil {
		return
	}

	payload, err := json.Marshal(OrderEvent{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		Status:     order.Status,
		ItemCount:  len(order.Items),
		Total:      order.Total().StringFixed(2),
		OccurredAt: e.timestamp(),
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to encode order event")
		return
	}

	if _, err := e.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"order_id":   order.ID,
			"event_type": eventType,
		}).Warn("failed to enqueue order event")
		return
	}
	e.metrics.RecordOutboxEvent()
}
