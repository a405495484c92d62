package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

type reviewRepositoryInMemory struct {
	store *Store
}

func (r *reviewRepositoryInMemory) Get(_ context.Context, id string) (domain.Review, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	review, ok := r.store.reviews[id]
	if !ok {
		return domain.Review{}, domain.ErrReviewNotFound
	}
	return r.withUserName(review), nil
}

func (r *reviewRepositoryInMemory) ListByProduct(_ context.Context, productID string) ([]domain.Review, error) {
	r.store.mu.RLock()
	result := make([]domain.Review, 0)
	for _, review := range r.store.reviews {
		if review.ProductID == productID {
			result = append(result, r.withUserName(review))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

// withUserName подставляет текущее имя автора. Вызывается под блокировкой Store.
func (r *reviewRepositoryInMemory) withUserName(review domain.Review) domain.Review {
	if user, ok := r.store.users[review.UserID]; ok {
		review.UserName = user.Name
	}
	return review
}

var _ domain.ReviewRepository = (*reviewRepositoryInMemory)(nil)
