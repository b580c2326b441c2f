package kafka

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

func TestDeadLetterPublisher_RoundTrip(t *testing.T) {
	producer, mock := newMockedProducer(t)
	var sent Envelope
	mock.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(decodeSent(TopicDeadLetterQueue, "order-9", &sent))

	publisher := NewDeadLetterPublisher(producer)
	failedAt := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return failedAt }

	event := domain.OutboxMessage{
		ID:            "outbox-9",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-9",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"order_id":"order-9"}`),
	}
	if err := publisher.PublishDeadLetter(event, errors.New("broker down")); err != nil {
		t.Fatalf("publish dead letter: %v", err)
	}

	letter, err := ParseDeadLetter(&sent)
	if err != nil {
		t.Fatalf("parse dead letter: %v", err)
	}
	if letter.PublishError != "broker down" || !letter.FailedAt.Equal(failedAt) {
		t.Fatalf("unexpected dead letter: %+v", letter)
	}
	original := letter.Original()
	if original.ID != event.ID || original.AggregateID != event.AggregateID || string(original.Payload) != string(event.Payload) {
		t.Fatalf("original = %+v, want %+v", original, event)
	}
}

func TestDeadLetterPublisher_Failures(t *testing.T) {
	if err := NewDeadLetterPublisher(nil).PublishDeadLetter(domain.OutboxMessage{ID: "x"}, nil); !errors.Is(err, domain.ErrOutboxPublish) {
		t.Fatalf("expected ErrOutboxPublish, got %v", err)
	}

	producer, mock := newMockedProducer(t)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	err := NewDeadLetterPublisher(producer).PublishDeadLetter(domain.OutboxMessage{ID: "x", Payload: []byte(`{}`)}, errors.New("boom"))
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected broker error, got %v", err)
	}
}

func TestParseDeadLetter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     Envelope
		wantErr string
		wantID  string
	}{
		{
			name:   "fills from envelope",
			env:    Envelope{ID: "env-1", AggregateID: "order-1", EventType: domain.EventOrderCreated, Payload: []byte(`{"payload":{"a":1}}`)},
			wantID: "env-1",
		},
		{
			name:    "no original payload",
			env:     Envelope{ID: "env-2", Payload: []byte(`{"outbox_id":"o-2"}`)},
			wantErr: "original event payload",
		},
		{
			name:    "not a dead letter",
			env:     Envelope{ID: "env-3", Payload: []byte(`[1,2]`)},
			wantErr: "decode dead letter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			letter, err := ParseDeadLetter(&tt.env)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if letter.OutboxID != tt.wantID || letter.AggregateID != tt.env.AggregateID || letter.EventType != tt.env.EventType {
				t.Fatalf("unexpected letter: %+v", letter)
			}
		})
	}
}

func TestNewDeadLetter_EmptyPayloadStaysNull(t *testing.T) {
	t.Parallel()

	letter := NewDeadLetter(domain.OutboxMessage{ID: "o-1", Payload: []byte{}}, nil, time.Now())
	if letter.Payload != nil || letter.PublishError != "" {
		t.Fatalf("unexpected letter: %+v", letter)
	}
}
