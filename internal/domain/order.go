package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа пекарни.
type OrderStatus string

const (
	// Заказ создан, товар зарезервирован.
	OrderStatusPending OrderStatus = "PENDING"
	// Заказ подтверждён пекарней.
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	// Заказ готовится.
	OrderStatusPreparing OrderStatus = "PREPARING"
	// Заказ готов к выдаче или доставке.
	OrderStatusReady OrderStatus = "READY"
	// Заказ доставлен.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// Заказ отменён.
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderStatuses перечисляет статусы в порядке жизненного цикла.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// ParseOrderStatus разбирает имя статуса без учёта регистра и пробелов по краям.
func ParseOrderStatus(name string) (OrderStatus, error) {
	candidate := OrderStatus(strings.ToUpper(strings.TrimSpace(name)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", ErrUnknownStatus
}

// Valid проверяет, что статус входит в список поддерживаемых.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// OrderItem — позиция заказа. Цена и название фиксируются в момент оформления
// и не зависят от дальнейших изменений каталога.
type OrderItem struct {
	ID          string
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	CreatedAt   time.Time
}

// Subtotal возвращает стоимость позиции.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Delivery — данные доставки заказа.
type Delivery struct {
	Address string
	City    string
	Zip     string
	Phone   string
	Notes   string
}

var phonePattern = regexp.MustCompile(`^\+?[0-9\s\-]{10,20}$`)

// Normalized обрезает пробелы по краям всех полей доставки.
func (d Delivery) Normalized() Delivery {
	return Delivery{
		Address: strings.TrimSpace(d.Address),
		City:    strings.TrimSpace(d.City),
		Zip:     strings.TrimSpace(d.Zip),
		Phone:   strings.TrimSpace(d.Phone),
		Notes:   strings.TrimSpace(d.Notes),
	}
}

// Validate проверяет обязательные поля доставки после нормализации.
func (d Delivery) Validate() error {
	d = d.Normalized()
	switch {
	case d.Address == "":
		return InvalidRequestf("delivery address is required")
	case d.City == "":
		return InvalidRequestf("delivery city is required")
	case d.Zip == "":
		return InvalidRequestf("delivery zip is required")
	case d.Phone == "":
		return InvalidRequestf("delivery phone is required")
	case !phonePattern.MatchString(d.Phone):
		return ErrDeliveryPhoneInvalid
	}
	return nil
}

// Order агрегирует заказ и владеет своими позициями. Пользователь и товары
// связаны только по идентификаторам.
type Order struct {
	ID         string
	UserID     string
	Items      []OrderItem
	TotalPrice decimal.Decimal
	Status     OrderStatus
	Delivery   Delivery
	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CalculateTotal суммирует стоимость позиций.
func CalculateTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, InvalidRequestf("order user is required"))
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrCartEmpty)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrUnknownStatus)
	}
	for _, item := range o.Items {
		if item.Quantity < 1 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.UnitPrice.IsNegative() {
			errs = append(errs, InvalidRequestf("item price must be non-negative"))
		}
	}
	if !CalculateTotal(o.Items).Equal(o.TotalPrice) {
		errs = append(errs, InvalidRequestf("order total does not match items sum"))
	}

	return errs
}

// Clone возвращает копию заказа с независимым срезом позиций.
func (o Order) Clone() Order {
	if o.Items != nil {
		o.Items = append([]OrderItem(nil), o.Items...)
	}
	return o
}
