package kafka

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

func newMockedProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mock := mocks.NewSyncProducer(t, nil)
	t.Cleanup(func() { _ = mock.Close() })
	return NewProducerFromSync(mock, log.WithField("test", t.Name())), mock
}

// decodeSent проверяет ключ и возвращает конверт отправленного сообщения.
func decodeSent(wantTopic, wantKey string, out *Envelope) mocks.MessageChecker {
	return func(msg *sarama.ProducerMessage) error {
		if msg.Topic != wantTopic {
			return fmt.Errorf("topic = %s, want %s", msg.Topic, wantTopic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != wantKey {
			return fmt.Errorf("key = %s, want %s", key, wantKey)
		}
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		return json.Unmarshal(value, out)
	}
}

func TestOutboxPublisher_KeysByOrder(t *testing.T) {
	tests := []struct {
		name    string
		event   domain.OutboxMessage
		wantKey string
	}{
		{
			name: "aggregate id",
			event: domain.OutboxMessage{
				ID: "outbox-1", AggregateType: domain.AggregateOrder, AggregateID: "order-123",
				EventType: domain.EventOrderStatusChanged, Payload: []byte(`{"order_id":"order-123","to":"processing"}`),
			},
			wantKey: "order-123",
		},
		{
			name:    "message id without aggregate",
			event:   domain.OutboxMessage{ID: "outbox-2", EventType: domain.EventOrderCreated, Payload: []byte(`{}`)},
			wantKey: "outbox-2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			producer, mock := newMockedProducer(t)
			var sent Envelope
			mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(decodeSent(TopicOrderEvents, tt.wantKey, &sent))

			publisher := NewOutboxPublisher(producer, "")
			fixed := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
			publisher.now = func() time.Time { return fixed }

			if err := publisher.Publish(tt.event); err != nil {
				t.Fatalf("publish failed: %v", err)
			}
			if sent.ID != tt.event.ID || sent.EventType != tt.event.EventType || !sent.PublishedAt.Equal(fixed) {
				t.Fatalf("unexpected envelope: %+v", sent)
			}
			if string(sent.Payload) != string(tt.event.Payload) {
				t.Fatalf("payload = %s, want %s", sent.Payload, tt.event.Payload)
			}
		})
	}
}

func TestOutboxPublisher_ProducerError(t *testing.T) {
	producer, mock := newMockedProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := NewOutboxPublisher(producer, TopicOrderEvents).Publish(domain.OutboxMessage{
		ID: "outbox-3", AggregateID: "order-234", EventType: domain.EventOrderStatusChanged, Payload: []byte(`{}`),
	})
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	if err := NewOutboxPublisher(nil, TopicOrderEvents).Publish(domain.OutboxMessage{ID: "outbox-4"}); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}
	var publisher *OutboxTopicPublisher
	if err := publisher.Publish(domain.OutboxMessage{}); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("nil publisher: expected ErrOutboxPublish, got %v", err)
	}
}
