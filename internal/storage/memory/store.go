package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// Store — in-memory хранилище пекарни для локальной разработки и тестов.
// Транзакции сериализуются эксклюзивной блокировкой всего хранилища, поэтому
// конкурентные резервирования одного товара не могут прочитать устаревший остаток.
type Store struct {
	mu sync.RWMutex

	users    map[string]domain.User
	emails   map[string]string
	products map[string]domain.Product
	orders   map[string]domain.Order
	reviews  map[string]domain.Review
	outbox   map[string]*outboxRecord
	timeline map[string][]domain.TimelineEvent

	// seq задаёт порядок вставки для outbox.
	seq int64
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]domain.User),
		emails:   make(map[string]string),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		reviews:  make(map[string]domain.Review),
		outbox:   make(map[string]*outboxRecord),
		timeline: make(map[string][]domain.TimelineEvent),
	}
}

// WithinTx выполняет fn в транзакции. Изменения накапливаются в tx и применяются
// только при успешном завершении fn; ошибка или паника оставляют хранилище нетронутым.
// Внутри fn нельзя обращаться к репозиториям Store напрямую, только через tx.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// Products возвращает репозиторий каталога.
func (s *Store) Products() domain.ProductRepository { return &productRepositoryInMemory{store: s} }

// Orders возвращает репозиторий заказов (только чтение).
func (s *Store) Orders() domain.OrderRepository { return &orderRepositoryInMemory{store: s} }

// Users возвращает репозиторий пользователей.
func (s *Store) Users() domain.UserRepository { return &userRepositoryInMemory{store: s} }

// Reviews возвращает репозиторий отзывов (только чтение).
func (s *Store) Reviews() domain.ReviewRepository { return &reviewRepositoryInMemory{store: s} }

// Outbox возвращает репозиторий transactional outbox.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{store: s} }

// Timeline возвращает репозиторий истории заказов.
func (s *Store) Timeline() domain.TimelineRepository { return &timelineRepositoryInMemory{store: s} }

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ domain.TxManager = (*Store)(nil)
