package domain

import (
	"errors"
	"fmt"
)

// Базовые виды ошибок. Конкретные ошибки оборачивают их через %w,
// чтобы транспортный слой классифицировал ответ через errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
)

var (
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrProductNotFound = fmt.Errorf("product %w", ErrNotFound)
	ErrOrderNotFound   = fmt.Errorf("order %w", ErrNotFound)
	ErrReviewNotFound  = fmt.Errorf("review %w", ErrNotFound)

	// Корзина без позиций.
	ErrCartEmpty = fmt.Errorf("%w: cart must contain at least one item", ErrInvalidRequest)
	// Количество в позиции меньше единицы.
	ErrItemQtyInvalid = fmt.Errorf("%w: item quantity must be at least 1", ErrInvalidRequest)
	// Позиция корзины без идентификатора товара.
	ErrProductIDRequired = fmt.Errorf("%w: product id is required", ErrInvalidRequest)
	// Телефон не прошёл проверку формата.
	ErrDeliveryPhoneInvalid = fmt.Errorf("%w: delivery phone is invalid", ErrInvalidRequest)
	// Имя статуса не входит в список поддерживаемых.
	ErrUnknownStatus = fmt.Errorf("%w: unknown order status", ErrInvalidRequest)

	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = fmt.Errorf("order version %w", ErrConflict)
	// Email уже зарегистрирован.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrConflict)
	// Пользователь уже оставил отзыв на товар.
	ErrReviewExists = fmt.Errorf("%w: product already reviewed by user", ErrConflict)
	// Хранилище прервало транзакцию из-за конкурентной записи.
	ErrConcurrentUpdate = fmt.Errorf("%w: concurrent update, retry the request", ErrConflict)

	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrUnauthorized)

	// Ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// Сообщение outbox не найдено.
	ErrOutboxMessageNotFound = fmt.Errorf("outbox message %w", ErrNotFound)
)

// InsufficientStockError описывает позицию, которую не удалось зарезервировать.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q (%s): requested %d, available %d",
		e.ProductName, e.ProductID, e.Requested, e.Available)
}

// Unwrap позволяет сравнивать ошибку с ErrInsufficientStock.
func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// Shortfall возвращает, сколько единиц не хватило.
func (e *InsufficientStockError) Shortfall() int {
	return e.Requested - e.Available
}

// InvalidRequestf собирает ошибку валидации с текстом.
func InvalidRequestf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound проверяет, что ошибка относится к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// AsInsufficientStock извлекает детали нехватки товара из цепочки ошибок.
func AsInsufficientStock(err error) (*InsufficientStockError, bool) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		return stockErr, true
	}
	return nil, false
}
