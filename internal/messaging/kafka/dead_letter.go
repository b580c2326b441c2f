package kafka

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/vladislavdragonenkov/storefront-sync/internal/domain"
)

// DeadLetter — тело outbox-события, которое не удалось доставить за все попытки.
// В DLQ оно лежит внутри обычного Envelope.
type DeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"dlq_published_at"`
}

var errEmptyDeadLetter = errors.New("dead letter does not contain original event payload")

// NewDeadLetter фиксирует событие и причину отказа.
func NewDeadLetter(event domain.OutboxMessage, cause error, failedAt time.Time) DeadLetter {
	letter := DeadLetter{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		FailedAt:      failedAt.UTC(),
	}
	if len(event.Payload) > 0 {
		letter.Payload = json.RawMessage(event.Payload)
	}
	if cause != nil {
		letter.PublishError = cause.Error()
	}
	return letter
}

// ParseDeadLetter достаёт DeadLetter из конверта DLQ. Пустые поля берутся из конверта.
func ParseDeadLetter(envelope *Envelope) (DeadLetter, error) {
	var letter DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return DeadLetter{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(letter.Payload) == 0 {
		return DeadLetter{}, errEmptyDeadLetter
	}
	letter.OutboxID = fallback(letter.OutboxID, envelope.ID)
	letter.AggregateType = fallback(letter.AggregateType, envelope.AggregateType)
	letter.AggregateID = fallback(letter.AggregateID, envelope.AggregateID)
	letter.EventType = fallback(letter.EventType, envelope.EventType)
	return letter, nil
}

// Original восстанавливает исходное outbox-сообщение для повторной публикации.
func (d DeadLetter) Original() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}

// DeadLetterPublisher складывает недоставленные outbox-события в DLQ.
type DeadLetterPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewDeadLetterPublisher публикует в TopicDeadLetterQueue.
func NewDeadLetterPublisher(producer *Producer) *DeadLetterPublisher {
	return &DeadLetterPublisher{
		producer: producer,
		topic:    TopicDeadLetterQueue,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PublishDeadLetter заворачивает событие с причиной отказа в конверт и отправляет в DLQ.
func (p *DeadLetterPublisher) PublishDeadLetter(event domain.OutboxMessage, cause error) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("%w: dead letter publisher is not initialized", domain.ErrOutboxPublish)
	}

	now := p.now()
	body, err := json.Marshal(NewDeadLetter(event, cause, now))
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	envelope := NewEnvelope(domain.OutboxMessage{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       body,
	}, now)
	return p.producer.PublishEvent(p.topic, messageKey(event), envelope)
}
