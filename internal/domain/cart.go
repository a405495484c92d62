package domain

import "strings"

// CartLine — запрошенное количество товара.
type CartLine struct {
	ProductID string
	Quantity  int
}

// Cart — упорядоченный набор позиций и данные доставки, из которых собирается заказ.
type Cart struct {
	Lines    []CartLine
	Delivery Delivery
}

// Normalized возвращает копию корзины без пробелов по краям идентификаторов товаров
// и полей доставки. Проверяется и резервируется уже нормализованная корзина.
func (c Cart) Normalized() Cart {
	lines := make([]CartLine, len(c.Lines))
	for i, line := range c.Lines {
		lines[i] = CartLine{ProductID: strings.TrimSpace(line.ProductID), Quantity: line.Quantity}
	}
	return Cart{Lines: lines, Delivery: c.Delivery.Normalized()}
}

// Validate проверяет нормализованную корзину до открытия транзакции.
func (c Cart) Validate() error {
	c = c.Normalized()
	if len(c.Lines) == 0 {
		return ErrCartEmpty
	}
	for _, line := range c.Lines {
		if line.ProductID == "" {
			return ErrProductIDRequired
		}
		if line.Quantity < 1 {
			return ErrItemQtyInvalid
		}
	}
	return c.Delivery.Validate()
}
