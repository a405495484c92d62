package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Типы событий заказа, которые уходят через outbox.
const (
	EventOrderCreated       = "order.created"
	EventOrderStatusChanged = "order.status_changed"

	AggregateOrder = "order"
)

// OrderEvent — полезная нагрузка события заказа.
type OrderEvent struct {
	EventType      string          `json:"event_type"`
	OrderID        string          `json:"order_id"`
	UserID         string          `json:"user_id"`
	Status         OrderStatus     `json:"status"`
	PreviousStatus OrderStatus     `json:"previous_status,omitempty"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	ItemCount      int             `json:"item_count"`
	Version        int64           `json:"version"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NewOrderEventMessage собирает outbox-сообщение о заказе. previous пуст для order.created.
func NewOrderEventMessage(eventType string, order Order, previous OrderStatus, occurred time.Time) (OutboxMessage, error) {
	payload, err := json.Marshal(OrderEvent{
		EventType:      eventType,
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         order.Status,
		PreviousStatus: previous,
		TotalPrice:     order.TotalPrice,
		ItemCount:      len(order.Items),
		Version:        order.Version,
		OccurredAt:     occurred.UTC(),
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     occurred.UTC(),
	}, nil
}

// ErrMalformedEvent означает, что сообщение outbox не является корректным событием заказа.
// Такое сообщение не публикуется повторно и сразу уходит в DLQ.
var ErrMalformedEvent = errors.New("malformed order event")

// DecodeOrderEvent разбирает полезную нагрузку сообщения outbox и сверяет её с заголовком.
func DecodeOrderEvent(msg OutboxMessage) (OrderEvent, error) {
	if msg.AggregateType != AggregateOrder {
		return OrderEvent{}, fmt.Errorf("%w: aggregate type %q", ErrMalformedEvent, msg.AggregateType)
	}
	if msg.EventType != EventOrderCreated && msg.EventType != EventOrderStatusChanged {
		return OrderEvent{}, fmt.Errorf("%w: event type %q", ErrMalformedEvent, msg.EventType)
	}

	var event OrderEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return OrderEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch {
	case event.OrderID != msg.AggregateID:
		return event, fmt.Errorf("%w: order id %q does not match aggregate %q", ErrMalformedEvent, event.OrderID, msg.AggregateID)
	case event.EventType != msg.EventType:
		return event, fmt.Errorf("%w: payload event type %q, header %q", ErrMalformedEvent, event.EventType, msg.EventType)
	case !event.Status.Valid():
		return event, fmt.Errorf("%w: status %q", ErrMalformedEvent, event.Status)
	case msg.EventType == EventOrderStatusChanged && !event.PreviousStatus.Valid():
		return event, fmt.Errorf("%w: previous status %q", ErrMalformedEvent, event.PreviousStatus)
	}
	return event, nil
}

// DeadLetter — запись DLQ: исходное событие и причина, по которой его не удалось опубликовать.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	PublishError   string          `json:"publish_error"`
	Attempts       int             `json:"attempts"`
	DLQPublishedAt time.Time       `json:"dlq_published_at"`
}

// NewDeadLetter фиксирует отказ публикации msg после attempts попыток.
// attempts равен нулю для событий, отвергнутых без публикации.
func NewDeadLetter(msg OutboxMessage, cause error, attempts int, at time.Time) DeadLetter {
	payload := json.RawMessage(msg.Payload)
	if !json.Valid(payload) {
		// битая нагрузка сохраняется строкой
		payload, _ = json.Marshal(string(msg.Payload))
	}
	letter := DeadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        payload,
		Attempts:       attempts,
		DLQPublishedAt: at.UTC(),
	}
	if cause != nil {
		letter.PublishError = cause.Error()
	}
	return letter
}

// Message упаковывает запись в сообщение для DLQ topic с заголовком исходного события.
func (d DeadLetter) Message() (OutboxMessage, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal dead letter %s: %w", d.OutboxID, err)
	}
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       payload,
		CreatedAt:     d.DLQPublishedAt,
	}, nil
}

// Original восстанавливает outbox-сообщение для повторной публикации.
func (d DeadLetter) Original() OutboxMessage {
	return OutboxMessage{
		ID:            d.OutboxID,
		AggregateType: d.AggregateType,
		AggregateID:   d.AggregateID,
		EventType:     d.EventType,
		Payload:       []byte(d.Payload),
	}
}
