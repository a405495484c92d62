package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// productRepositoryInMemory — каталог поверх Store.
type productRepositoryInMemory struct {
	store *Store
}

func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.products[product.ID]; exists {
		return fmt.Errorf("product %s already exists: %w", product.ID, domain.ErrConflict)
	}
	r.store.products[product.ID] = product
	return nil
}

func (r *productRepositoryInMemory) Update(_ context.Context, product domain.Product) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	current, ok := r.store.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Rating = current.Rating
	product.ReviewCount = current.ReviewCount
	product.CreatedAt = current.CreatedAt
	r.store.products[product.ID] = product
	return nil
}

// Delete удаляет товар вместе с отзывами. Позиции заказов хранят снимок и не затрагиваются.
func (r *productRepositoryInMemory) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.store.products, id)
	for reviewID, review := range r.store.reviews {
		if review.ProductID == id {
			delete(r.store.reviews, reviewID)
		}
	}
	return nil
}

func (r *productRepositoryInMemory) Get(_ context.Context, id string) (domain.Product, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	product, ok := r.store.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (r *productRepositoryInMemory) List(_ context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	filter = filter.Normalize()
	search := strings.ToLower(filter.Search)

	r.store.mu.RLock()
	matched := make([]domain.Product, 0, len(r.store.products))
	for _, p := range r.store.products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		matched = append(matched, p)
	}
	r.store.mu.RUnlock()

	sortProducts(matched, filter.SortBy, filter.Desc)

	total := len(matched)
	from := filter.Page * filter.Size
	if from > total {
		from = total
	}
	to := from + filter.Size
	if to > total {
		to = total
	}

	return domain.NewProductPage(matched[from:to], filter, total), nil
}

func (r *productRepositoryInMemory) ListFeatured(_ context.Context) ([]domain.Product, error) {
	return r.collect(func(p domain.Product) bool { return p.Featured }), nil
}

func (r *productRepositoryInMemory) ListByCategory(_ context.Context, category string) ([]domain.Product, error) {
	return r.collect(func(p domain.Product) bool { return p.Category == category }), nil
}

func (r *productRepositoryInMemory) Categories(_ context.Context) ([]string, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, p := range r.store.products {
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

func (r *productRepositoryInMemory) Count(_ context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return len(r.store.products), nil
}

func (r *productRepositoryInMemory) collect(keep func(domain.Product) bool) []domain.Product {
	r.store.mu.RLock()
	result := make([]domain.Product, 0)
	for _, p := range r.store.products {
		if keep(p) {
			result = append(result, p)
		}
	}
	r.store.mu.RUnlock()

	sortProducts(result, domain.SortByName, false)
	return result
}

// sortProducts упорядочивает выборку детерминированно: при равенстве ключа решает ID.
func sortProducts(items []domain.Product, sortBy string, desc bool) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var cmp int
		switch sortBy {
		case domain.SortByPrice:
			cmp = a.Price.Cmp(b.Price)
		case domain.SortByRating:
			cmp = a.Rating.Cmp(b.Rating)
		case domain.SortByCreatedAt:
			cmp = a.CreatedAt.Compare(b.CreatedAt)
		default:
			cmp = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		}
		if cmp == 0 {
			return a.ID < b.ID
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
