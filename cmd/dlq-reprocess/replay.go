package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/messaging/kafka"
)

// headerReplayedFrom помечает переотправленное сообщение топиком DLQ, из которого оно взято.
const headerReplayedFrom = "x-replayed-from"

// errNotDeadLetter — сообщение в DLQ без признаков consumer- или outbox-отказа.
var errNotDeadLetter = errors.New("message is not a dead letter")

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

type replayProducer interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
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

// replayFilter ограничивает переотправку типом события и/или заказом. Пустые поля не ограничивают.
type replayFilter struct {
	eventType string
	orderID   string
}

func (f replayFilter) normalized() replayFilter {
	return replayFilter{
		eventType: strings.TrimSpace(f.eventType),
		orderID:   strings.TrimSpace(f.orderID),
	}
}

func (f replayFilter) matches(c candidate) bool {
	if f.eventType != "" && !strings.EqualFold(f.eventType, c.eventType) {
		return false
	}
	return f.orderID == "" || f.orderID == c.orderID
}

// candidate — сообщение, готовое к переотправке.
type candidate struct {
	source    string
	topic     string
	key       string
	value     []byte
	eventType string
	orderID   string
}

const (
	sourceConsumer = "consumer"
	sourceOutbox   = "outbox"
)

// classify восстанавливает исходное сообщение.
// Consumer кладёт в DLQ исходное тело, а топик пишет в header.
// Outbox worker кладёт конверт с DeadLetter, его событие уходит в fallbackTopic в новом конверте.
func classify(msg *sarama.ConsumerMessage, fallbackTopic string, now time.Time) (candidate, error) {
	if originalTopic, ok := headerValue(msg, kafka.HeaderOriginalTopic); ok {
		c := candidate{
			source:  sourceConsumer,
			topic:   strings.TrimSpace(originalTopic),
			key:     string(msg.Key),
			value:   msg.Value,
			orderID: string(msg.Key),
		}
		if c.topic == "" {
			c.topic = fallbackTopic
		}
		if envelope, err := kafka.ParseEnvelope(msg); err == nil {
			c.eventType = envelope.EventType
			if envelope.AggregateID != "" {
				c.orderID = envelope.AggregateID
			}
		}
		return c, nil
	}

	envelope, err := kafka.ParseEnvelope(msg)
	if err != nil {
		return candidate{}, fmt.Errorf("%w: %v", errNotDeadLetter, err)
	}
	if len(envelope.Payload) == 0 {
		return candidate{}, errNotDeadLetter
	}
	letter, err := kafka.ParseDeadLetter(envelope)
	if err != nil {
		return candidate{}, err
	}

	original := letter.Original()
	encoded, err := json.Marshal(kafka.NewEnvelope(original, now))
	if err != nil {
		return candidate{}, fmt.Errorf("encode replay envelope: %w", err)
	}
	key := original.AggregateID
	if key == "" {
		key = original.ID
	}
	return candidate{
		source:    sourceOutbox,
		topic:     fallbackTopic,
		key:       key,
		value:     encoded,
		eventType: original.EventType,
		orderID:   original.AggregateID,
	}, nil
}

func headerValue(msg *sarama.ConsumerMessage, key string) (string, bool) {
	for _, header := range msg.Headers {
		if header != nil && string(header.Key) == key {
			return string(header.Value), true
		}
	}
	return "", false
}

type replayStats struct {
	scanned  int
	replayed int
	skipped  int
	filtered int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
	s.filtered += other.filtered
}

// replayer читает партиции DLQ по порядку, пока не просмотрит cfg.limit сообщений.
type replayer struct {
	cfg      config
	client   offsetClient
	consumer partitionConsumerSource
	producer replayProducer
	logger   *log.Entry
	now      func() time.Time
}

func newReplayer(cfg config, client offsetClient, consumer partitionConsumerSource, producer replayProducer) (*replayer, error) {
	if client == nil || consumer == nil {
		return nil, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && producer == nil {
		return nil, fmt.Errorf("producer is required in execute mode")
	}
	return &replayer{
		cfg:      cfg,
		client:   client,
		consumer: consumer,
		producer: producer,
		logger:   log.WithField("component", "dlq-reprocess"),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run просматривает партиции в порядке возрастания номера.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats

	partitions, err := r.client.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.scanned >= r.cfg.limit {
			break
		}
		stats, err := r.drain(ctx, partition, r.cfg.limit-total.scanned)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// window возвращает [start, end) для чтения партиции. С fromNewest берутся последние budget сообщений.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.client.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	start := oldest
	if r.cfg.fromNewest && newest-int64(budget) > oldest {
		start = newest - int64(budget)
	}
	return start, newest, nil
}

// drain читает партицию до конца окна, исчерпания budget или простоя idleTimeout.
func (r *replayer) drain(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats
	if budget <= 0 {
		return stats, nil
	}

	start, end, err := r.window(partition, budget)
	if err != nil || start >= end {
		return stats, err
	}

	pc, err := r.consumer.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	errs := pc.Errors()
	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case consumeErr, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if consumeErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumeErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			if err := r.handle(msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= end {
				return stats, nil
			}
		case <-idle.C:
			return stats, nil
		}
	}
	return stats, nil
}

// handle учитывает одно сообщение. Ошибкой считается только сбой публикации.
func (r *replayer) handle(msg *sarama.ConsumerMessage, stats *replayStats) error {
	stats.scanned++
	entry := r.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	c, err := classify(msg, r.cfg.targetTopic, r.now())
	if errors.Is(err, errNotDeadLetter) {
		stats.skipped++
		entry.Debug("skip message without dead letter markers")
		return nil
	}
	if err != nil {
		stats.skipped++
		entry.WithError(err).Warn("skip unsupported dlq message")
		return nil
	}
	if !r.cfg.filter.matches(c) {
		stats.filtered++
		return nil
	}

	entry = entry.WithFields(log.Fields{
		"source":       c.source,
		"target_topic": c.topic,
		"key":          c.key,
		"event_type":   c.eventType,
	})
	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		stats.replayed++
		return nil
	}
	if err := r.publish(c); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	entry.Info("dlq message replayed")
	stats.replayed++
	return nil
}

func (r *replayer) publish(c candidate) error {
	if r.producer == nil {
		return fmt.Errorf("producer is nil")
	}
	_, _, err := r.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     c.topic,
		Key:       sarama.StringEncoder(c.key),
		Value:     sarama.ByteEncoder(c.value),
		Timestamp: r.now(),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerReplayedFrom), Value: []byte(r.cfg.sourceTopic)},
		},
	})
	return err
}
