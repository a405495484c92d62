package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "bakery.order.events"
	TopicDeadLetterQueue = "bakery.order.dlq" // Dead Letter Queue для неопубликованных outbox-событий
)

// Kafka headers публикуемых сообщений
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope — конверт, в котором outbox-событие уходит в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt,
	}
}

// ParseOrderEvent достаёт событие заказа из сообщения Kafka.
func ParseOrderEvent(message *sarama.ConsumerMessage) (Envelope, domain.OrderEvent, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return Envelope{}, domain.OrderEvent{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if envelope.AggregateType != domain.AggregateOrder {
		return envelope, domain.OrderEvent{}, fmt.Errorf("unexpected aggregate type %q", envelope.AggregateType)
	}

	var event domain.OrderEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return envelope, domain.OrderEvent{}, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return envelope, event, nil
}

// ParseDeadLetter разбирает сообщение из DLQ topic.
func ParseDeadLetter(message *sarama.ConsumerMessage) (domain.DeadLetter, error) {
	var envelope Envelope
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}

	var letter domain.DeadLetter
	if err := json.Unmarshal(envelope.Payload, &letter); err != nil {
		return domain.DeadLetter{}, fmt.Errorf("failed to unmarshal dead letter: %w", err)
	}
	if len(letter.Payload) == 0 || string(letter.Payload) == "null" {
		return domain.DeadLetter{}, fmt.Errorf("dead letter %s has no original payload", envelope.ID)
	}
	if letter.OutboxID == "" {
		letter.OutboxID = envelope.ID
	}
	if letter.AggregateType == "" {
		letter.AggregateType = envelope.AggregateType
	}
	if letter.AggregateID == "" {
		letter.AggregateID = envelope.AggregateID
	}
	if letter.EventType == "" {
		letter.EventType = envelope.EventType
	}
	return letter, nil
}
