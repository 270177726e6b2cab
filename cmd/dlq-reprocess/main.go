// Команда dlq-reprocess возвращает события заказов из dead letter topic в основной поток.
// По умолчанию работает в режиме dry-run и только печатает кандидатов.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderstore/internal/domain"
	"github.com/vladislavdragonenkov/orderstore/internal/messaging/kafka"
)

const (
	envBrokers  = "ORDERSTORE_KAFKA_BROKERS"
	envClientID = "ORDERSTORE_KAFKA_CLIENT_ID"

	defaultClientID = "orderstore-dlq-reprocess"
)

type config struct {
	brokers     []string
	clientID    string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// newReplayDependencies подменяется в тестах. producer == nil в режиме dry-run.
var newReplayDependencies = func(cfg config) (kafka.OffsetClient, kafka.PartitionConsumerSource, *kafka.Producer, error) {
	client, consumer, err := kafka.OpenReplaySource(cfg.brokers, cfg.clientID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.execute {
		return client, consumer, nil, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, cfg.clientID)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, nil, nil, err
	}
	return client, consumer, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := run(ctx, cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: "+envBrokers+")")
	flag.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to read")
	flag.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic to republish events to")
	flag.IntVar(&cfg.limit, "limit", kafka.DefaultReplayLimit, "max number of dead letters to scan")
	flag.BoolVar(&cfg.execute, "execute", false, "republish events; default is dry-run")
	flag.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest dead letters of each partition")
	flag.DurationVar(&cfg.idleTimeout, "idle-timeout", kafka.DefaultReplayIdleTimeout, "stop reading a partition after this much silence")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv(envBrokers)
	}
	cfg.brokers = parseBrokers(brokersRaw)
	cfg.clientID = defaultClientID
	if id := strings.TrimSpace(os.Getenv(envClientID)); id != "" {
		cfg.clientID = id
	}

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", envBrokers)
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.sourceTopic == cfg.targetTopic:
		return config{}, fmt.Errorf("source-topic and target-topic must differ")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	chunks := strings.Split(raw, ",")
	brokers := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) (kafka.ReplayStats, error) {
	logger := log.WithField("component", "dlq-reprocess")
	logger.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	client, consumer, producer, err := newReplayDependencies(cfg)
	if err != nil {
		return kafka.ReplayStats{}, err
	}
	defer func() {
		if producer != nil {
			_ = producer.Close()
		}
		_ = consumer.Close()
		_ = client.Close()
	}()

	var publisher domain.OutboxPublisher
	if producer != nil {
		publisher = kafka.NewOutboxPublisher(producer, cfg.targetTopic)
	}

	replayer := kafka.NewReplayer(client, consumer, publisher, kafka.ReplayConfig{
		SourceTopic: cfg.sourceTopic,
		Limit:       cfg.limit,
		Execute:     cfg.execute,
		FromNewest:  cfg.fromNewest,
		IdleTimeout: cfg.idleTimeout,
	}, logger)
	return replayer.Run(ctx)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
