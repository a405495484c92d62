package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// memTx копит изменения поверх состояния Store до фиксации.
type memTx struct {
	store *Store

	products       map[string]domain.Product
	orders         map[string]domain.Order
	reviews        map[string]domain.Review
	deletedReviews map[string]struct{}
	outbox         []domain.OutboxMessage
	timeline       []domain.TimelineEvent
}

func newTx(s *Store) *memTx {
	return &memTx{
		store:          s,
		products:       make(map[string]domain.Product),
		orders:         make(map[string]domain.Order),
		reviews:        make(map[string]domain.Review),
		deletedReviews: make(map[string]struct{}),
	}
}

func (t *memTx) GetUser(_ context.Context, id string) (domain.User, error) {
	user, ok := t.store.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (t *memTx) product(id string) (domain.Product, bool) {
	if p, ok := t.products[id]; ok {
		return p, true
	}
	p, ok := t.store.products[id]
	return p, ok
}

// LockProducts возвращает товары; блокировка уже обеспечена эксклюзивным доступом к Store.
func (t *memTx) LockProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := t.product(id); ok {
			result[id] = p
		}
	}
	return result, nil
}

func (t *memTx) UpdateStock(_ context.Context, productID string, stock int) error {
	if stock < 0 {
		return domain.InvalidRequestf("stock of product %s must be non-negative", productID)
	}
	p, ok := t.product(productID)
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock = stock
	p.UpdatedAt = time.Now().UTC()
	t.products[productID] = p
	return nil
}

func (t *memTx) UpdateRating(_ context.Context, productID string, rating decimal.Decimal, reviewCount int) error {
	p, ok := t.product(productID)
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Rating = rating
	p.ReviewCount = reviewCount
	p.UpdatedAt = time.Now().UTC()
	t.products[productID] = p
	return nil
}

func (t *memTx) order(id string) (domain.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return o, true
	}
	o, ok := t.store.orders[id]
	return o, ok
}

func (t *memTx) InsertOrder(_ context.Context, order domain.Order) error {
	if _, exists := t.order(order.ID); exists {
		return fmt.Errorf("order %s already exists: %w", order.ID, domain.ErrConflict)
	}
	t.orders[order.ID] = order.Clone()
	return nil
}

func (t *memTx) LockOrder(_ context.Context, id string) (domain.Order, error) {
	o, ok := t.order(id)
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// SaveOrderStatus меняет только статус и updatedAt: позиции и сумма заказа неизменны.
func (t *memTx) SaveOrderStatus(_ context.Context, order domain.Order) error {
	current, ok := t.order(order.ID)
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	current.Status = order.Status
	current.UpdatedAt = order.UpdatedAt
	current.Version++
	t.orders[order.ID] = current
	return nil
}

// eachReview обходит отзывы с учётом изменений транзакции.
func (t *memTx) eachReview(fn func(domain.Review) bool) {
	for id, r := range t.reviews {
		if _, deleted := t.deletedReviews[id]; deleted {
			continue
		}
		if !fn(r) {
			return
		}
	}
	for id, r := range t.store.reviews {
		if _, staged := t.reviews[id]; staged {
			continue
		}
		if _, deleted := t.deletedReviews[id]; deleted {
			continue
		}
		if !fn(r) {
			return
		}
	}
}

func (t *memTx) GetReview(_ context.Context, id string) (domain.Review, error) {
	if _, deleted := t.deletedReviews[id]; deleted {
		return domain.Review{}, domain.ErrReviewNotFound
	}
	if r, ok := t.reviews[id]; ok {
		return r, nil
	}
	if r, ok := t.store.reviews[id]; ok {
		return r, nil
	}
	return domain.Review{}, domain.ErrReviewNotFound
}

func (t *memTx) FindReview(_ context.Context, userID, productID string) (domain.Review, error) {
	var (
		found domain.Review
		ok    bool
	)
	t.eachReview(func(r domain.Review) bool {
		if r.UserID == userID && r.ProductID == productID {
			found, ok = r, true
			return false
		}
		return true
	})
	if !ok {
		return domain.Review{}, domain.ErrReviewNotFound
	}
	return found, nil
}

func (t *memTx) InsertReview(ctx context.Context, review domain.Review) error {
	if _, err := t.FindReview(ctx, review.UserID, review.ProductID); err == nil {
		return domain.ErrReviewExists
	}
	if _, ok := t.product(review.ProductID); !ok {
		return domain.ErrProductNotFound
	}
	delete(t.deletedReviews, review.ID)
	t.reviews[review.ID] = review
	return nil
}

func (t *memTx) UpdateReview(ctx context.Context, review domain.Review) error {
	if _, err := t.GetReview(ctx, review.ID); err != nil {
		return err
	}
	t.reviews[review.ID] = review
	return nil
}

func (t *memTx) DeleteReview(ctx context.Context, id string) error {
	if _, err := t.GetReview(ctx, id); err != nil {
		return err
	}
	delete(t.reviews, id)
	t.deletedReviews[id] = struct{}{}
	return nil
}

func (t *memTx) SummarizeReviews(_ context.Context, productID string) (domain.ReviewSummary, error) {
	var summary domain.ReviewSummary
	t.eachReview(func(r domain.Review) bool {
		if r.ProductID == productID {
			summary.Sum += r.Rating
			summary.Count++
		}
		return true
	})
	return summary, nil
}

func (t *memTx) Enqueue(_ context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	t.outbox = append(t.outbox, msg)
	return nil
}

func (t *memTx) AppendTimeline(_ context.Context, event domain.TimelineEvent) error {
	t.timeline = append(t.timeline, event)
	return nil
}

// commit применяет накопленные изменения. Вызывается под блокировкой Store.
func (t *memTx) commit() {
	s := t.store
	for id, p := range t.products {
		s.products[id] = p
	}
	for id, o := range t.orders {
		s.orders[id] = o
	}
	for id := range t.deletedReviews {
		delete(s.reviews, id)
	}
	for id, r := range t.reviews {
		s.reviews[id] = r
	}
	for _, msg := range t.outbox {
		s.seq++
		s.outbox[msg.ID] = &outboxRecord{msg: msg, status: outboxStatusPending, seq: s.seq}
	}
	for _, event := range t.timeline {
		events := append(s.timeline[event.OrderID], event)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Occurred.Before(events[j].Occurred)
		})
		s.timeline[event.OrderID] = events
	}
}

var _ domain.Tx = (*memTx)(nil)
