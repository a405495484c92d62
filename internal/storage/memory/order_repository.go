package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// orderRepositoryInMemory — чтение заказов из Store.
type orderRepositoryInMemory struct {
	store *Store
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepositoryInMemory) Get(_ context.Context, id string) (domain.Order, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	order, ok := r.store.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByUser возвращает заказы пользователя, ограничивая выборку limit (если >0).
func (r *orderRepositoryInMemory) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	return r.list(func(o domain.Order) bool { return o.UserID == userID }, limit), nil
}

// ListAll возвращает все заказы, новые первыми.
func (r *orderRepositoryInMemory) ListAll(_ context.Context, limit int) ([]domain.Order, error) {
	return r.list(func(domain.Order) bool { return true }, limit), nil
}

func (r *orderRepositoryInMemory) list(keep func(domain.Order) bool, limit int) []domain.Order {
	r.store.mu.RLock()
	result := make([]domain.Order, 0, len(r.store.orders))
	for _, order := range r.store.orders {
		if keep(order) {
			result = append(result, order.Clone())
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// Stats считает агрегаты; выручка и продажи по дням учитывают заказы с since, кроме отменённых.
func (r *orderRepositoryInMemory) Stats(_ context.Context, since time.Time) (domain.OrderStats, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	stats := domain.OrderStats{
		Revenue:  decimal.Zero,
		ByStatus: make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
	}
	for _, status := range domain.OrderStatuses {
		stats.ByStatus[status] = 0
	}

	daily := make(map[string]*domain.DailySales)
	for _, order := range r.store.orders {
		stats.TotalOrders++
		stats.ByStatus[order.Status]++
		if order.Status == domain.OrderStatusPending {
			stats.PendingOrders++
		}
		if order.CreatedAt.Before(since) || order.Status == domain.OrderStatusCancelled {
			continue
		}
		stats.Revenue = stats.Revenue.Add(order.TotalPrice)

		day := order.CreatedAt.UTC().Format(time.DateOnly)
		entry, ok := daily[day]
		if !ok {
			entry = &domain.DailySales{Date: day, Revenue: decimal.Zero}
			daily[day] = entry
		}
		entry.Revenue = entry.Revenue.Add(order.TotalPrice)
		entry.Orders++
	}

	stats.SalesByDate = make([]domain.DailySales, 0, len(daily))
	for _, entry := range daily {
		stats.SalesByDate = append(stats.SalesByDate, *entry)
	}
	sort.Slice(stats.SalesByDate, func(i, j int) bool {
		return stats.SalesByDate[i].Date < stats.SalesByDate[j].Date
	})

	return stats, nil
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
