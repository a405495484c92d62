package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRating выставляется товару без отзывов.
var DefaultRating = decimal.RequireFromString("5.0")

// PriceScale задаёт число знаков после запятой в цене, как в колонке NUMERIC(10,2).
const PriceScale = 2

// MaxPrice ограничивает цену сверху разрядностью NUMERIC(10,2).
var MaxPrice = decimal.RequireFromString("99999999.99")

// Product — позиция каталога пекарни. Stock меняется только через резервирование
// или админские операции каталога.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageURL    string
	Stock       int
	Rating      decimal.Decimal
	ReviewCount int
	Featured    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate проверяет поля, которые задаёт администратор каталога.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, InvalidRequestf("product name is required"))
	}
	switch {
	case !p.Price.IsPositive():
		errs = append(errs, InvalidRequestf("product price must be positive"))
	case !p.Price.Equal(p.Price.Truncate(PriceScale)):
		errs = append(errs, InvalidRequestf("product price must have at most %d decimal places", PriceScale))
	case p.Price.GreaterThan(MaxPrice):
		errs = append(errs, InvalidRequestf("product price must not exceed %s", MaxPrice.StringFixed(PriceScale)))
	}
	if strings.TrimSpace(p.Category) == "" {
		errs = append(errs, InvalidRequestf("product category is required"))
	}
	if p.Stock < 0 {
		errs = append(errs, InvalidRequestf("product stock must be non-negative"))
	}

	return errs
}

// Поля сортировки каталога.
const (
	SortByName      = "name"
	SortByPrice     = "price"
	SortByCreatedAt = "createdAt"
	SortByRating    = "rating"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

// ProductFilter задаёт выборку каталога.
type ProductFilter struct {
	Category string
	Search   string
	SortBy   string
	Desc     bool
	Page     int
	Size     int
}

// Normalize подставляет значения по умолчанию и отбрасывает неизвестную сортировку.
func (f ProductFilter) Normalize() ProductFilter {
	f.Category = strings.TrimSpace(f.Category)
	f.Search = strings.TrimSpace(f.Search)
	switch f.SortBy {
	case SortByName, SortByPrice, SortByCreatedAt, SortByRating:
	default:
		f.SortBy = SortByName
	}
	if f.Page < 0 {
		f.Page = 0
	}
	if f.Size <= 0 {
		f.Size = DefaultPageSize
	}
	if f.Size > MaxPageSize {
		f.Size = MaxPageSize
	}
	return f
}

// ProductPage — страница каталога.
type ProductPage struct {
	Items      []Product
	Page       int
	Size       int
	TotalItems int
	TotalPages int
}

// NewProductPage считает число страниц для выборки.
func NewProductPage(items []Product, f ProductFilter, total int) ProductPage {
	pages := 0
	if f.Size > 0 {
		pages = (total + f.Size - 1) / f.Size
	}
	if items == nil {
		items = []Product{}
	}
	return ProductPage{Items: items, Page: f.Page, Size: f.Size, TotalItems: total, TotalPages: pages}
}
