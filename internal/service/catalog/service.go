package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	defaultCacheTTL = 5 * time.Minute

	keyFeatured   = "featured"
	keyCategories = "categories"
	keyCategory   = "category:"
)

// ProductInput — редактируемые поля карточки товара.
type ProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Category    string
	ImageURL    string
	Stock       int
	Featured    bool
}

// Service читает и изменяет каталог. Витринные выборки кэшируются, если задан cache.
type Service struct {
	products domain.ProductRepository
	cache    Cache
	ttl      time.Duration
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис каталога. cache может быть nil: тогда выборки идут в хранилище.
func NewService(products domain.ProductRepository, cache Cache, ttl time.Duration, logger *log.Entry) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{
		products: products,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) List(ctx context.Context, filter domain.ProductFilter) (domain.ProductPage, error) {
	return s.products.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.products.Get(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.products.Count(ctx)
}

// Featured возвращает избранные товары.
func (s *Service) Featured(ctx context.Context) ([]domain.Product, error) {
	return cached(ctx, s, keyFeatured, func() ([]domain.Product, error) {
		return s.products.ListFeatured(ctx)
	})
}

// ByCategory возвращает товары категории.
func (s *Service) ByCategory(ctx context.Context, category string) ([]domain.Product, error) {
	category = strings.TrimSpace(category)
	return cached(ctx, s, keyCategory+category, func() ([]domain.Product, error) {
		return s.products.ListByCategory(ctx, category)
	})
}

// Categories возвращает отсортированный список различных категорий.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	return cached(ctx, s, keyCategories, func() ([]string, error) {
		return s.products.Categories(ctx)
	})
}

// Create добавляет товар. Новый товар получает рейтинг 5.0 без отзывов.
func (s *Service) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:        uuid.NewString(),
		Rating:    domain.DefaultRating,
		CreatedAt: now,
		UpdatedAt: now,
	}
	apply(&product, in)
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.invalidate(ctx)
	s.logger.WithField("product_id", product.ID).Info("product created")
	return product, nil
}

// Update перезаписывает редактируемые поля товара.
func (s *Service) Update(ctx context.Context, id string, in ProductInput) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	apply(&product, in)
	product.UpdatedAt = s.now()
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, err
	}
	s.invalidate(ctx)
	return product, nil
}

// Delete удаляет товар. Позиции прошлых заказов сохраняют снимок названия и цены.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}

func apply(p *domain.Product, in ProductInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	p.Price = in.Price
	p.Category = strings.TrimSpace(in.Category)
	p.ImageURL = strings.TrimSpace(in.ImageURL)
	p.Stock = in.Stock
	p.Featured = in.Featured
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to invalidate catalog cache")
	}
}

// cached читает значение из кэша, а при промахе или ошибке кэша загружает его из хранилища.
func cached[T any](ctx context.Context, s *Service, key string, load func() (T, error)) (T, error) {
	if s.cache == nil {
		return load()
	}

	var value T
	hit, err := s.cache.Get(ctx, key, &value)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("catalog cache read failed")
	}
	if hit {
		return value, nil
	}

	value, err = load()
	if err != nil {
		return value, err
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("catalog cache write failed")
	}
	return value, nil
}
