package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ProductRepository — чтение и админские изменения каталога вне транзакции заказа.
type ProductRepository interface {
	Create(ctx context.Context, product Product) error
	// Update перезаписывает редактируемые поля карточки. Рейтинг, число отзывов и дата
	// создания не меняются.
	Update(ctx context.Context, product Product) error
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (Product, error)
	List(ctx context.Context, filter ProductFilter) (ProductPage, error)
	ListFeatured(ctx context.Context) ([]Product, error)
	ListByCategory(ctx context.Context, category string) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// OrderRepository — чтение заказов. Запись идёт только через Tx.
type OrderRepository interface {
	Get(ctx context.Context, id string) (Order, error)
	// ListByUser возвращает заказы пользователя, новые первыми; при limit <= 0 без ограничения.
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	ListAll(ctx context.Context, limit int) ([]Order, error)
	Stats(ctx context.Context, since time.Time) (OrderStats, error)
}

// UserRepository хранит учётные записи.
type UserRepository interface {
	// Create возвращает ErrEmailTaken, если email уже занят.
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Count(ctx context.Context) (int, error)
}

// ReviewRepository — чтение отзывов.
type ReviewRepository interface {
	Get(ctx context.Context, id string) (Review, error)
	// ListByProduct возвращает отзывы товара, новые первыми.
	ListByProduct(ctx context.Context, productID string) ([]Review, error)
}

// Tx — единица работы. Все изменения внутри неё фиксируются вместе или не фиксируются вовсе.
type Tx interface {
	GetUser(ctx context.Context, id string) (User, error)

	// LockProducts блокирует строки товаров до конца транзакции и возвращает их.
	// Отсутствующие идентификаторы в результат не попадают.
	LockProducts(ctx context.Context, ids []string) (map[string]Product, error)
	UpdateStock(ctx context.Context, productID string, stock int) error
	UpdateRating(ctx context.Context, productID string, rating decimal.Decimal, reviewCount int) error

	InsertOrder(ctx context.Context, order Order) error
	LockOrder(ctx context.Context, id string) (Order, error)
	// SaveOrderStatus сохраняет статус и updatedAt, если order.Version совпадает с сохранённой
	// версией, и увеличивает её. Иначе ErrOrderVersionConflict.
	SaveOrderStatus(ctx context.Context, order Order) error

	GetReview(ctx context.Context, id string) (Review, error)
	FindReview(ctx context.Context, userID, productID string) (Review, error)
	InsertReview(ctx context.Context, review Review) error
	UpdateReview(ctx context.Context, review Review) error
	DeleteReview(ctx context.Context, id string) error
	SummarizeReviews(ctx context.Context, productID string) (ReviewSummary, error)

	Enqueue(ctx context.Context, msg OutboxMessage) error
	AppendTimeline(ctx context.Context, event TimelineEvent) error
}

// TxManager открывает транзакцию, передаёт её в fn и фиксирует при nil-ошибке.
// При ошибке или панике в fn все изменения откатываются.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository выдаёт накопленные события воркеру публикации.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// TimelineRepository отдаёт историю заказа.
type TimelineRepository interface {
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error
	// DeleteExpired удаляет до limit записей с ttl <= before, самые старые первыми,
	// и возвращает их ключи в виде scope:key.
	DeleteExpired(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
