package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
)

const (
	DefaultReplayLimit       = 100
	DefaultReplayIdleTimeout = 3 * time.Second
)

// OffsetClient: часть sarama.Client, нужная для чтения границ партиций.
type OffsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type PartitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type PartitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (PartitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// OpenReplaySource подключается к брокерам для чтения dead letter topic.
func OpenReplaySource(brokers []string, clientID string) (OffsetClient, PartitionConsumerSource, error) {
	if len(brokers) == 0 {
		return nil, nil, errors.New("kafka brokers are not configured")
	}

	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, saramaConsumerAdapter{consumer: consumer}, nil
}

// ReplayConfig задаёт один прогон повторной публикации.
type ReplayConfig struct {
	SourceTopic string
	Limit       int
	// Execute == false: сообщения только логируются.
	Execute     bool
	FromNewest  bool
	IdleTimeout time.Duration
}

type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// Replayer перечитывает dead letter topic и возвращает события в основной поток
// через обычный OutboxPublisher.
type Replayer struct {
	client    OffsetClient
	consumer  PartitionConsumerSource
	publisher domain.OutboxPublisher
	cfg       ReplayConfig
	logger    *log.Entry
}

func NewReplayer(client OffsetClient, consumer PartitionConsumerSource, publisher domain.OutboxPublisher, cfg ReplayConfig, logger *log.Entry) *Replayer {
	if cfg.SourceTopic == "" {
		cfg.SourceTopic = TopicDeadLetterQueue
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultReplayLimit
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultReplayIdleTimeout
	}
	if logger == nil {
		logger = log.WithField("component", "dlq-replay")
	}
	return &Replayer{client: client, consumer: consumer, publisher: publisher, cfg: cfg, logger: logger}
}

// Run обходит партиции по возрастанию номера, пока не наберётся Limit сообщений.
func (r *Replayer) Run(ctx context.Context) (ReplayStats, error) {
	var total ReplayStats
	if r.client == nil || r.consumer == nil {
		return total, errors.New("kafka client and consumer are required")
	}
	if r.cfg.Execute && r.publisher == nil {
		return total, errors.New("publisher is required in execute mode")
	}

	partitions, err := r.client.Partitions(r.cfg.SourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.SourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.SourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.Processed >= r.cfg.Limit {
			break
		}
		stats, err := r.processPartition(ctx, partition, r.cfg.Limit-total.Processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.cfg.Execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":      mode,
		"processed": total.Processed,
		"replayed":  total.Replayed,
		"skipped":   total.Skipped,
	}).Info("dlq replay finished")
	return total, nil
}

func (r *Replayer) processPartition(ctx context.Context, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats
	if limit <= 0 {
		return stats, nil
	}

	topic := r.cfg.SourceTopic
	oldest, err := r.client.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if r.cfg.FromNewest {
		start = max(newest-int64(limit), oldest)
	}

	pc, err := r.consumer.ConsumePartition(topic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case consumeErr := <-pc.Errors():
			if consumeErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil {
				return stats, nil
			}
			// сообщения, записанные после старта, не трогаем
			if msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(r.cfg.IdleTimeout)

			if err := r.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

func (r *Replayer) handle(msg *sarama.ConsumerMessage, stats *ReplayStats) error {
	stats.Processed++
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	event, ok, err := DecodeDeadLetter(msg)
	if err != nil {
		stats.Skipped++
		r.logger.WithError(err).WithFields(fields).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		stats.Skipped++
		return nil
	}

	fields["outbox_id"] = event.ID
	fields["order_id"] = event.AggregateID
	fields["event_type"] = event.EventType
	if !r.cfg.Execute {
		stats.Replayed++
		r.logger.WithFields(fields).Info("dlq replay candidate")
		return nil
	}
	if err := r.publisher.Publish(event); err != nil {
		return fmt.Errorf("publish replay message %s: %w", event.ID, err)
	}
	stats.Replayed++
	r.logger.WithFields(fields).Debug("dlq message replayed")
	return nil
}

// DecodeDeadLetter восстанавливает outbox-сообщение из записи dead letter topic.
// ok == false: запись не похожа на dead letter этого сервиса и пропускается.
func DecodeDeadLetter(msg *sarama.ConsumerMessage) (domain.OutboxMessage, bool, error) {
	if msg == nil || len(msg.Value) == 0 {
		return domain.OutboxMessage{}, false, errors.New("empty dlq message")
	}

	var letter domain.DeadLetter
	if err := json.Unmarshal(msg.Value, &letter); err != nil {
		return domain.OutboxMessage{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	if letter.OutboxID == "" || letter.EventType == "" {
		return domain.OutboxMessage{}, false, nil
	}

	event := letter.Message()
	if event.AggregateType == "" {
		event.AggregateType = headerValue(msg, HeaderAggregateType)
	}
	return event, true, nil
}

func headerValue(msg *sarama.ConsumerMessage, name string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == name {
			return string(h.Value)
		}
	}
	return ""
}
