package domain

import "github.com/shopspring/decimal"

// Reservation фиксирует списание остатка под позицию корзины.
type Reservation struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	StockBefore int
	StockAfter  int
}

// Validate проверяет согласованность резервирования.
func (r *Reservation) Validate() []error {
	var errs []error

	if r.ProductID == "" {
		errs = append(errs, ErrProductIDRequired)
	}
	if r.Quantity < 1 {
		errs = append(errs, ErrItemQtyInvalid)
	}
	if r.StockAfter < 0 || r.StockBefore-r.Quantity != r.StockAfter {
		errs = append(errs, InvalidRequestf("reservation stock mismatch"))
	}

	return errs
}
