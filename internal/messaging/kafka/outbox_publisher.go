package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

// OutboxPublisher публикует outbox-сообщения в один topic, ключ: id заказа.
type OutboxPublisher struct {
	producer   *Producer
	topic      string
	deadLetter bool
	now        func() time.Time
}

// NewOutboxPublisher создаёт паблишер основного topic (пустой topic: TopicOrderEvents).
func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDLQPublisher создаёт паблишер dead letter topic.
// Тело сообщения уже собрано воркером и отправляется как есть.
func NewDLQPublisher(producer *Producer, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &OutboxPublisher{producer: producer, topic: topic, deadLetter: true, now: time.Now}
}

func (p *OutboxPublisher) Topic() string {
	return p.topic
}

func (p *OutboxPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("publish %s: %w", event.ID, errProducerNotInitialized)
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}

	value := event.Payload
	if p.deadLetter {
		headers[HeaderDeadLetter] = "true"
	} else {
		encoded, err := json.Marshal(NewEnvelope(event, p.now()))
		if err != nil {
			return fmt.Errorf("marshal envelope %s: %w", event.ID, err)
		}
		value = encoded
	}

	return p.producer.Send(Message{Topic: p.topic, Key: key, Value: value, Headers: headers})
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
