package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Review — отзыв пользователя о товаре. На пару (пользователь, товар) допускается один отзыв.
type Review struct {
	ID        string
	UserID    string
	UserName  string
	ProductID string
	Rating    int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет оценку и комментарий.
func (r *Review) Validate() []error {
	var errs []error

	if r.Rating < 1 || r.Rating > 5 {
		errs = append(errs, InvalidRequestf("rating must be between 1 and 5"))
	}
	if len(strings.TrimSpace(r.Comment)) > 2000 {
		errs = append(errs, InvalidRequestf("comment is too long"))
	}

	return errs
}

// ReviewSummary — агрегат оценок товара.
type ReviewSummary struct {
	Sum   int
	Count int
}

// Rating возвращает среднюю оценку с одним знаком после запятой или DefaultRating без отзывов.
func (s ReviewSummary) Rating() decimal.Decimal {
	if s.Count == 0 {
		return DefaultRating
	}
	return decimal.NewFromInt(int64(s.Sum)).
		DivRound(decimal.NewFromInt(int64(s.Count)), 1)
}
