package stats

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// DefaultWindow задаёт период, за который считаются выручка и продажи по дням.
const DefaultWindow = 30 * 24 * time.Hour

// Service собирает сводку для панели администратора.
type Service struct {
	orders   domain.OrderRepository
	users    domain.UserRepository
	products domain.ProductRepository
	window   time.Duration
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис статистики. window <= 0 заменяется на DefaultWindow.
func NewService(orders domain.OrderRepository, users domain.UserRepository, products domain.ProductRepository, window time.Duration, logger *log.Entry) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = log.WithField("component", "stats")
	}
	return &Service{
		orders:   orders,
		users:    users,
		products: products,
		window:   window,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Dashboard возвращает агрегаты по заказам, пользователям и товарам.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardStats, error) {
	since := s.now().Add(-s.window)

	orderStats, err := s.orders.Stats(ctx, since)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("order stats: %w", err)
	}
	users, err := s.users.Count(ctx)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("count users: %w", err)
	}
	products, err := s.products.Count(ctx)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("count products: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"orders":   orderStats.TotalOrders,
		"users":    users,
		"products": products,
	}).Debug("dashboard stats collected")

	return domain.DashboardStats{
		OrderStats:    orderStats,
		TotalUsers:    users,
		TotalProducts: products,
		Since:         since,
	}, nil
}
