package inventory

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/metrics"
)

// Reserver списывает остатки под позиции корзины внутри транзакции заказа.
type Reserver struct {
	logger  *log.Entry
	metrics *metrics.ShopMetrics
}

// NewReserver создаёт Reserver. m может быть nil.
func NewReserver(logger *log.Entry, m *metrics.ShopMetrics) *Reserver {
	if logger == nil {
		logger = log.WithField("component", "inventory")
	}
	return &Reserver{logger: logger, metrics: m}
}

// ReserveCart резервирует позиции строго в порядке корзины и возвращает по одному
// резервированию на позицию.
//
// Все товары корзины блокируются до первой проверки, поэтому остаток, который
// видит проверка, не изменится до конца транзакции. Первая позиция, которую нельзя
// зарезервировать, прерывает резервирование целиком; откат уже списанного
// обеспечивает транзакция. Повторяющиеся товары списываются из общего остатка.
func (r *Reserver) ReserveCart(ctx context.Context, tx domain.Tx, lines []domain.CartLine) ([]domain.Reservation, error) {
	if len(lines) == 0 {
		return nil, domain.ErrCartEmpty
	}

	ids := make([]string, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	locked, err := tx.LockProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}

	stock := make(map[string]int, len(locked))
	for id, p := range locked {
		stock[id] = p.Stock
	}

	reservations := make([]domain.Reservation, 0, len(lines))
	units := 0
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, domain.ErrItemQtyInvalid
		}

		product, ok := locked[line.ProductID]
		if !ok {
			r.metrics.RecordReservation(metrics.ReservationNotFound, 0)
			return nil, fmt.Errorf("product %s: %w", line.ProductID, domain.ErrProductNotFound)
		}

		available := stock[line.ProductID]
		if available < line.Quantity {
			r.metrics.RecordReservation(metrics.ReservationInsufficient, 0)
			r.logger.WithFields(log.Fields{
				"product_id": product.ID,
				"requested":  line.Quantity,
				"available":  available,
			}).Debug("insufficient stock")
			return nil, &domain.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Requested:   line.Quantity,
				Available:   available,
			}
		}

		stock[line.ProductID] = available - line.Quantity
		units += line.Quantity
		reservations = append(reservations, domain.Reservation{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   product.Price,
			StockBefore: available,
			StockAfter:  available - line.Quantity,
		})
	}

	// Пишем итоговый остаток по каждому товару один раз, в порядке первого появления.
	written := make(map[string]struct{}, len(stock))
	for _, res := range reservations {
		if _, done := written[res.ProductID]; done {
			continue
		}
		written[res.ProductID] = struct{}{}
		if err := tx.UpdateStock(ctx, res.ProductID, stock[res.ProductID]); err != nil {
			return nil, fmt.Errorf("update stock of product %s: %w", res.ProductID, err)
		}
	}

	r.metrics.RecordReservation(metrics.ReservationReserved, units)
	return reservations, nil
}
