package domain

import "time"

// Типы событий истории заказа.
const (
	TimelineOrderPlaced   = "ORDER_PLACED"
	TimelineStatusChanged = "STATUS_CHANGED"
)

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
