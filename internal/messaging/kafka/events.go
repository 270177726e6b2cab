package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// Topics.
const (
	TopicOrderEvents     = "orderstore.order.events"
	TopicDeadLetterQueue = "orderstore.order.events.dlq"
)

// Заголовки сообщений Kafka.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderDeadLetter    = "x-dead-letter"
)

// Envelope: тело сообщения в topic событий заказов.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение. Невалидный JSON в Payload заменяется на null.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage("null")
	if len(msg.Payload) > 0 && json.Valid(msg.Payload) {
		payload = json.RawMessage(msg.Payload)
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}
