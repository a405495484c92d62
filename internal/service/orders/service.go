package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/inventory"
)

// Service оформляет заказы и меняет их статус. Каждая операция записи выполняется
// одной транзакцией: изменения остатков, заказ, событие outbox и запись истории
// фиксируются вместе.
type Service struct {
	tx       domain.TxManager
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	reserver *inventory.Reserver
	logger   *log.Entry
	metrics  *metrics.ShopMetrics
	cache    Invalidator
	now      func() time.Time
}

// Invalidator сбрасывает кэш витрины. Кэшированные товары несут остаток,
// поэтому кэш сбрасывается после каждого оформленного заказа.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Option настраивает Service.
type Option func(*Service)

// WithCacheInvalidator подключает кэш каталога.
func WithCacheInvalidator(cache Invalidator) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// NewService создаёт сервис заказов. m может быть nil.
func NewService(
	tx domain.TxManager,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	reserver *inventory.Reserver,
	logger *log.Entry,
	m *metrics.ShopMetrics,
	options ...Option,
) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	if reserver == nil {
		reserver = inventory.NewReserver(logger, m)
	}
	s := &Service{
		tx:       tx,
		orders:   orders,
		timeline: timeline,
		reserver: reserver,
		logger:   logger,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// PlaceOrder собирает заказ из корзины от имени identity.
func (s *Service) PlaceOrder(ctx context.Context, identity domain.Identity, cart domain.Cart) (domain.Order, error) {
	start := time.Now()
	s.metrics.RecordCheckoutStarted()
	defer func() { s.metrics.RecordCheckoutFinished(time.Since(start)) }()

	cart = cart.Normalized()
	if err := cart.Validate(); err != nil {
		s.metrics.RecordCheckoutFailed(failureReason(err))
		return domain.Order{}, err
	}

	var order domain.Order
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		if _, err := tx.GetUser(ctx, identity.UserID); err != nil {
			return fmt.Errorf("resolve user %s: %w", identity.UserID, err)
		}

		reservations, err := s.reserver.ReserveCart(ctx, tx, cart.Lines)
		if err != nil {
			return err
		}

		order = assemble(identity.UserID, cart.Delivery, reservations, s.now())
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errors.Join(errs...)
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		msg, err := domain.NewOrderEventMessage(domain.EventOrderCreated, order, "", order.CreatedAt)
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, msg); err != nil {
			return err
		}
		return tx.AppendTimeline(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineOrderPlaced,
			Reason:   fmt.Sprintf("%d item(s), total %s", len(order.Items), order.TotalPrice.StringFixed(2)),
			Occurred: order.CreatedAt,
		})
	})
	if err != nil {
		s.metrics.RecordCheckoutFailed(failureReason(err))
		s.logger.WithError(err).WithField("user_id", identity.UserID).Info("order rejected")
		return domain.Order{}, err
	}

	s.invalidateCache(ctx)
	s.metrics.RecordOrderPlaced()
	s.metrics.RecordOutboxEvent()
	s.metrics.RecordTimelineEvent()
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"items":    len(order.Items),
		"total":    order.TotalPrice.StringFixed(2),
	}).Info("order placed")
	return order, nil
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate catalog cache")
	}
}

func assemble(userID string, delivery domain.Delivery, reservations []domain.Reservation, now time.Time) domain.Order {
	items := make([]domain.OrderItem, 0, len(reservations))
	for _, r := range reservations {
		items = append(items, domain.OrderItem{
			ID:          uuid.NewString(),
			ProductID:   r.ProductID,
			ProductName: r.ProductName,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			CreatedAt:   now,
		})
	}

	return domain.Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		Items:      items,
		TotalPrice: domain.CalculateTotal(items),
		Status:     domain.OrderStatusPending,
		Delivery:   delivery.Normalized(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// UpdateStatus выставляет заказу статус по имени. Граф переходов не ограничен:
// допустим переход из любого статуса в любой.
func (s *Service) UpdateStatus(ctx context.Context, orderID, statusName string) (domain.Order, error) {
	var (
		order    domain.Order
		previous domain.OrderStatus
		changed  bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		current, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		target, err := domain.ParseOrderStatus(statusName)
		if err != nil {
			return fmt.Errorf("%w: %q", err, statusName)
		}

		order, previous = current, current.Status
		if target == current.Status {
			return nil
		}

		order.Status = target
		order.UpdatedAt = s.now()
		if err := tx.SaveOrderStatus(ctx, order); err != nil {
			return err
		}
		order.Version++
		changed = true

		msg, err := domain.NewOrderEventMessage(domain.EventOrderStatusChanged, order, previous, order.UpdatedAt)
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, msg); err != nil {
			return err
		}
		return tx.AppendTimeline(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     domain.TimelineStatusChanged,
			Reason:   fmt.Sprintf("%s -> %s", previous, target),
			Occurred: order.UpdatedAt,
		})
	})
	if err != nil {
		return domain.Order{}, err
	}

	if changed {
		s.metrics.RecordStatusChanged(string(order.Status))
		s.metrics.RecordOutboxEvent()
		s.metrics.RecordTimelineEvent()
		s.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"from":     previous,
			"to":       order.Status,
		}).Info("order status changed")
	}
	return order, nil
}

// Get возвращает заказ владельцу или администратору. Для остальных заказ не существует.
func (s *Service) Get(ctx context.Context, identity domain.Identity, id string) (domain.Order, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !identity.CanAccess(order.UserID) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

// ListForUser возвращает заказы вызывающего, новые первыми.
func (s *Service) ListForUser(ctx context.Context, identity domain.Identity) ([]domain.Order, error) {
	return s.orders.ListByUser(ctx, identity.UserID, 0)
}

// ListAll возвращает все заказы, новые первыми.
func (s *Service) ListAll(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListAll(ctx, 0)
}

// Timeline возвращает историю заказа с теми же правами доступа, что и Get.
func (s *Service) Timeline(ctx context.Context, identity domain.Identity, id string) ([]domain.TimelineEvent, error) {
	if _, err := s.Get(ctx, identity, id); err != nil {
		return nil, err
	}
	return s.timeline.List(ctx, id)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
