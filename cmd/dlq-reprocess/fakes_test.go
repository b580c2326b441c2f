package main

import (
	"fmt"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront-sync/internal/messaging/kafka"
)

// Смещения партиции: first у самого старого сообщения, next у следующего записанного.
type offsetSpan struct {
	first int64
	next  int64
}

// fakeBroker отвечает на запросы метаданных и смещений.
type fakeBroker struct {
	partitions []int32
	listErr    error
	offsets    map[int32]offsetSpan
	offsetErrs map[int32]error
	closed     bool
}

func (b *fakeBroker) Partitions(string) ([]int32, error) {
	if b.listErr != nil {
		return nil, b.listErr
	}
	return append([]int32(nil), b.partitions...), nil
}

func (b *fakeBroker) GetOffset(_ string, partition int32, at int64) (int64, error) {
	if err := b.offsetErrs[partition]; err != nil {
		return 0, err
	}
	span := b.offsets[partition]
	if at == sarama.OffsetOldest {
		return span.first, nil
	}
	if at == sarama.OffsetNewest {
		return span.next, nil
	}
	return 0, fmt.Errorf("fake broker: offset marker %d", at)
}

func (b *fakeBroker) Close() error {
	b.closed = true
	return nil
}

type openCall struct {
	partition int32
	offset    int64
}

// fakeConsumer раздаёт заранее подготовленные партиции и запоминает, откуда их читали.
type fakeConsumer struct {
	claims  map[int32]partitionConsumer
	openErr error
	opened  []openCall
	closed  bool
}

func (c *fakeConsumer) ConsumePartition(_ string, partition int32, offset int64) (partitionConsumer, error) {
	c.opened = append(c.opened, openCall{partition: partition, offset: offset})
	if c.openErr != nil {
		return nil, c.openErr
	}
	if pc, ok := c.claims[partition]; ok {
		return pc, nil
	}
	return nil, fmt.Errorf("fake consumer: no claim for partition %d", partition)
}

func (c *fakeConsumer) Close() error {
	c.closed = true
	return nil
}

type fakePartition struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
	closed   bool
}

// blockedPartition никогда ничего не отдаёт.
func blockedPartition() *fakePartition {
	return &fakePartition{
		messages: make(chan *sarama.ConsumerMessage),
		errors:   make(chan *sarama.ConsumerError, 1),
	}
}

// drainedPartition отдаёт messages и закрывает оба канала.
func drainedPartition(messages []*sarama.ConsumerMessage) *fakePartition {
	p := &fakePartition{
		messages: make(chan *sarama.ConsumerMessage, len(messages)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, msg := range messages {
		p.messages <- msg
	}
	close(p.messages)
	close(p.errors)
	return p
}

func (p *fakePartition) Messages() <-chan *sarama.ConsumerMessage { return p.messages }
func (p *fakePartition) Errors() <-chan *sarama.ConsumerError     { return p.errors }

func (p *fakePartition) Close() error {
	p.closed = true
	return nil
}

type fakeProducer struct {
	failWith error
	sent     []*sarama.ProducerMessage
	closed   bool
}

func (p *fakeProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	p.sent = append(p.sent, msg)
	if p.failWith != nil {
		return 0, 0, p.failWith
	}
	return 0, int64(len(p.sent)), nil
}

func (p *fakeProducer) last() *sarama.ProducerMessage {
	if len(p.sent) == 0 {
		return nil
	}
	return p.sent[len(p.sent)-1]
}

func (p *fakeProducer) Close() error {
	p.closed = true
	return nil
}

// consumerDLQHeaders повторяет заголовки, которые consumer ставит при переносе в DLQ.
func consumerDLQHeaders(originalTopic string) []*sarama.RecordHeader {
	return []*sarama.RecordHeader{
		{Key: []byte(kafka.HeaderRetryCount), Value: []byte("3")},
		{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte(originalTopic)},
		{Key: []byte(kafka.HeaderErrorMessage), Value: []byte("handler failed")},
	}
}
