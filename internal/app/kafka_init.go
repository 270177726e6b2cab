package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
)

// kafkaPublishers: издатели событий и DLQ поверх одного producer.
type kafkaPublishers struct {
	producer *kafka.Producer
	events   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
}

// initKafka подключается к брокерам. Пустой список брокеров даёт nil, nil:
// сервис работает без Kafka, а outbox копит события.
func initKafka(cfg Config, logger *log.Entry) (*kafkaPublishers, error) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka is not configured, outbox events stay pending")
		return nil, nil
	}

	producer, err := kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaClientID)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithFields(log.Fields{
		"brokers": cfg.KafkaBrokers,
		"topic":   cfg.KafkaTopic,
	}).Info("kafka producer initialized")
	return &kafkaPublishers{
		producer: producer,
		events:   kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		dlq:      kafka.NewDLQPublisher(producer, cfg.KafkaDLQTopic),
	}, nil
}

// closeKafka закрывает producer, если он создан.
func closeKafka(publishers *kafkaPublishers, logger *log.Entry) {
	if publishers == nil || publishers.producer == nil {
		return
	}
	if err := publishers.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
