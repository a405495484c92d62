package memory

import (
	"context"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// timelineRepositoryInMemory отдаёт события, записанные транзакциями заказов.
type timelineRepositoryInMemory struct {
	store *Store
}

// List возвращает события заказа в хронологическом порядке.
func (r *timelineRepositoryInMemory) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	events := r.store.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}

var _ domain.TimelineRepository = (*timelineRepositoryInMemory)(nil)
