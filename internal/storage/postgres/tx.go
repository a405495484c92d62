package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// WithinTx открывает транзакцию READ COMMITTED. Конкурентные резервирования
// сериализуются блокировками строк (SELECT ... FOR UPDATE) в LockProducts.
// При ошибке или панике fn транзакция откатывается.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
			err = mapTxError(err)
		}
	}()

	if err = fn(ctx, &pgTx{tx: sqlTx}); err != nil {
		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// pgTx реализует domain.Tx поверх *sql.Tx.
type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetUser(ctx context.Context, id string) (domain.User, error) {
	return getUser(ctx, t.tx, `WHERE id = $1`, id)
}

// LockProducts блокирует строки в порядке возрастания id, чтобы встречные корзины
// с общими товарами не взаимоблокировались.
func (t *pgTx) LockProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)

	result := make(map[string]domain.Product, len(unique))
	for _, id := range unique {
		row := t.tx.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id)
		p, err := scanProduct(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lock product %s: %w", id, err)
		}
		result[id] = p
	}
	return result, nil
}

func (t *pgTx) UpdateStock(ctx context.Context, productID string, stock int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = $2, updated_at = $3
		WHERE id = $1
	`, productID, stock, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update stock: %w", mapTxError(err))
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (t *pgTx) UpdateRating(ctx context.Context, productID string, rating decimal.Decimal, reviewCount int) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET rating = $2, review_count = $3, updated_at = $4
		WHERE id = $1
	`, productID, rating, reviewCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update rating: %w", err)
	}
	return expectAffected(res, domain.ErrProductNotFound)
}

func (t *pgTx) InsertOrder(ctx context.Context, order domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, user_id, status, total_price,
			delivery_address, delivery_city, delivery_zip, delivery_phone, delivery_notes,
			version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		order.ID, order.UserID, string(order.Status), order.TotalPrice,
		order.Delivery.Address, order.Delivery.City, order.Delivery.Zip,
		order.Delivery.Phone, order.Delivery.Notes,
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s already exists: %w", order.ID, domain.ErrConflict)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for pos, item := range order.Items {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (
				id, order_id, position, product_id, product_name, quantity, unit_price, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`,
			item.ID, order.ID, pos, item.ProductID, item.ProductName,
			item.Quantity, item.UnitPrice, item.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) LockOrder(ctx context.Context, id string) (domain.Order, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order: %w", err)
	}

	items, err := loadItems(ctx, t.tx, []string{order.ID})
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items[order.ID]
	return order, nil
}

func (t *pgTx) SaveOrderStatus(ctx context.Context, order domain.Order) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    version = version + 1,
		    updated_at = $2
		WHERE id = $3
		  AND version = $4
	`, string(order.Status), order.UpdatedAt, order.ID, order.Version)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := t.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

func (t *pgTx) GetReview(ctx context.Context, id string) (domain.Review, error) {
	return getReview(ctx, t.tx, `WHERE r.id = $1`, id)
}

func (t *pgTx) FindReview(ctx context.Context, userID, productID string) (domain.Review, error) {
	return getReview(ctx, t.tx, `WHERE r.user_id = $1 AND r.product_id = $2`, userID, productID)
}

func (t *pgTx) InsertReview(ctx context.Context, review domain.Review) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO reviews (id, user_id, product_id, rating, comment, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, review.ID, review.UserID, review.ProductID, review.Rating, review.Comment, review.CreatedAt, review.UpdatedAt)
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return domain.ErrReviewExists
	case pgCode(err) == pgForeignKeyViolation:
		return domain.ErrProductNotFound
	default:
		return fmt.Errorf("insert review: %w", err)
	}
}

func (t *pgTx) UpdateReview(ctx context.Context, review domain.Review) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE reviews
		SET rating = $2, comment = $3, updated_at = $4
		WHERE id = $1
	`, review.ID, review.Rating, review.Comment, review.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update review: %w", err)
	}
	return expectAffected(res, domain.ErrReviewNotFound)
}

func (t *pgTx) DeleteReview(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return expectAffected(res, domain.ErrReviewNotFound)
}

func (t *pgTx) SummarizeReviews(ctx context.Context, productID string) (domain.ReviewSummary, error) {
	var summary domain.ReviewSummary
	if err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(rating), 0), COUNT(*)
		FROM reviews
		WHERE product_id = $1
	`, productID).Scan(&summary.Sum, &summary.Count); err != nil {
		return domain.ReviewSummary{}, fmt.Errorf("summarize reviews: %w", err)
	}
	return summary, nil
}

func (t *pgTx) Enqueue(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$6)
	`, msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.CreatedAt); err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

func (t *pgTx) AppendTimeline(ctx context.Context, event domain.TimelineEvent) error {
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO timeline_events (order_id, type, reason, occurred)
		VALUES ($1,$2,$3,$4)
	`, event.OrderID, event.Type, event.Reason, event.Occurred); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.TxManager = (*Store)(nil)
	_ domain.Tx        = (*pgTx)(nil)
)
