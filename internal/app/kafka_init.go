package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/messaging/kafka"
)

// Конструкторы Kafka подменяются в тестах.
var (
	newKafkaProducer  = kafka.NewProducer
	newStatusConsumer = kafka.NewConsumer
)

// kafkaBridge владеет producer и consumer. Любая из частей может отсутствовать:
// без Kafka события копятся в outbox, а кэш заказов живёт по TTL.
type kafkaBridge struct {
	producer *kafka.Producer
	consumer *kafka.Consumer
	logger   *log.Entry
}

// openKafka создаёт producer. Ошибка подключения не фатальна и только логируется.
func openKafka(cfg Config, logger *log.Entry) *kafkaBridge {
	bridge := &kafkaBridge{logger: logger.WithField("component", "kafka")}

	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		bridge.logger.Info("kafka brokers are not configured")
		return bridge
	}

	producer, err := newKafkaProducer(brokers, kafka.WithClientID(cfg.KafkaClientID))
	if err != nil {
		bridge.logger.WithError(err).Warn("kafka is unreachable, events stay in outbox")
		return bridge
	}
	bridge.producer = producer
	bridge.logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return bridge
}

// listen подписывает handler на статусы заказов. Сообщения, которые не удалось
// обработать, уходят в DLQ через тот же producer.
func (b *kafkaBridge) listen(ctx context.Context, cfg Config, handler kafka.MessageHandler) {
	brokers := splitBrokers(cfg.KafkaBrokers)
	if len(brokers) == 0 || !cfg.KafkaConsumeStatusEvents {
		return
	}

	opts := []kafka.ConsumerOption{
		kafka.WithMaxRetries(cfg.KafkaMaxRetries),
		kafka.WithConsumerLogger(b.logger.WithField("component", "kafka-consumer")),
	}
	if b.producer != nil {
		opts = append(opts, kafka.WithDeadLetterProducer(b.producer))
	}

	consumer, err := newStatusConsumer(brokers, cfg.KafkaGroupID, []string{cfg.KafkaTopic}, handler, opts...)
	if err != nil {
		b.logger.WithError(err).Warn("status consumer unavailable, cached orders expire by ttl only")
		return
	}
	if err := consumer.Start(ctx); err != nil {
		b.logger.WithError(err).Warn("failed to start status consumer")
		b.stopConsumer(consumer)
		return
	}
	b.consumer = consumer
}

// close останавливает consumer раньше producer: тот пишет в DLQ.
func (b *kafkaBridge) close() {
	if b.consumer != nil {
		b.stopConsumer(b.consumer)
		b.consumer = nil
	}
	if b.producer != nil {
		if err := b.producer.Close(); err != nil {
			b.logger.WithError(err).Warn("failed to close kafka producer")
		} else {
			b.logger.Info("kafka producer closed")
		}
		b.producer = nil
	}
}

func (b *kafkaBridge) stopConsumer(consumer *kafka.Consumer) {
	if err := consumer.Stop(); err != nil {
		b.logger.WithError(err).Warn("failed to stop status consumer")
	}
}

func splitBrokers(brokers string) []string {
	var list []string
	for _, broker := range strings.Split(brokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			list = append(list, broker)
		}
	}
	return list
}
