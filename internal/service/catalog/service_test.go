package catalog

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/orders"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
)

// mapCache — Cache для тестов с подсчётом обращений.
type mapCache struct {
	mu            sync.Mutex
	items         map[string][]byte
	hits, misses  int
	invalidations int
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string][]byte)}
}

func (c *mapCache) Get(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.items[key]
	if !ok {
		c.misses++
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(raw, dst)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.items[key] = raw
	c.mu.Unlock()
	return nil
}

func (c *mapCache) Invalidate(context.Context) error {
	c.mu.Lock()
	c.items = make(map[string][]byte)
	c.invalidations++
	c.mu.Unlock()
	return nil
}

func input(name, category, price string, stock int, featured bool) ProductInput {
	return ProductInput{
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Featured: featured,
	}
}

func TestService_CreateAndRead(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Products(), nil, 0, nil)

	created, err := svc.Create(ctx, input("  Rye loaf ", "Bread", "4.20", 12, true))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Rye loaf", created.Name)
	assert.True(t, created.Rating.Equal(domain.DefaultRating))
	assert.Zero(t, created.ReviewCount)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	n, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestService_CreateValidation(t *testing.T) {
	svc := NewService(memory.NewStore().Products(), nil, 0, nil)

	_, err := svc.Create(context.Background(), input("", "Bread", "0", -1, false))
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "price must be positive")
	assert.Contains(t, err.Error(), "stock must be non-negative")
}

func TestService_RejectsSubCentPrices(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Products(), nil, 0, nil)

	_, err := svc.Create(ctx, input("Eclair", "Pastry", "3.555", 5, false))
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Contains(t, err.Error(), "at most 2 decimal places")

	count, err := svc.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	created, err := svc.Create(ctx, input("Eclair", "Pastry", "3.50", 5, false))
	require.NoError(t, err)
	_, err = svc.Update(ctx, created.ID, input("Eclair", "Pastry", "3.505", 5, false))
	require.ErrorIs(t, err, domain.ErrInvalidRequest)

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "3.50", stored.Price.StringFixed(2))
}

func TestService_UpdateKeepsRating(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Products(), nil, 0, nil)

	created, err := svc.Create(ctx, input("Bun", "Pastry", "1.00", 3, false))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, created.ID, input("Cinnamon bun", "Pastry", "1.40", 9, true))
	require.NoError(t, err)
	assert.Equal(t, "Cinnamon bun", updated.Name)
	assert.Equal(t, 9, updated.Stock)
	assert.True(t, updated.Rating.Equal(domain.DefaultRating))
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)

	_, err = svc.Update(ctx, "missing", input("x", "y", "1", 1, false))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestService_CacheIsInvalidatedOnWrites(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	svc := NewService(memory.NewStore().Products(), cache, time.Minute, nil)

	_, err := svc.Create(ctx, input("Baguette", "Bread", "2.00", 5, true))
	require.NoError(t, err)

	featured, err := svc.Featured(ctx)
	require.NoError(t, err)
	require.Len(t, featured, 1)
	featured, err = svc.Featured(ctx)
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.True(t, featured[0].Price.Equal(decimal.RequireFromString("2.00")))
	assert.Equal(t, 1, cache.hits)

	categories, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bread"}, categories)

	croissant, err := svc.Create(ctx, input("Croissant", "Pastry", "3.50", 5, true))
	require.NoError(t, err)

	featured, err = svc.Featured(ctx)
	require.NoError(t, err)
	assert.Len(t, featured, 2, "cache must be dropped after create")

	categories, err = svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bread", "Pastry"}, categories)

	byCategory, err := svc.ByCategory(ctx, " Pastry ")
	require.NoError(t, err)
	require.Len(t, byCategory, 1)

	require.NoError(t, svc.Delete(ctx, croissant.ID))
	byCategory, err = svc.ByCategory(ctx, "Pastry")
	require.NoError(t, err)
	assert.Empty(t, byCategory)
	assert.Equal(t, 3, cache.invalidations)
}

func TestService_ShowcaseReflectsStockAfterCheckout(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := newMapCache()
	svc := NewService(store.Products(), cache, time.Minute, nil)
	checkout := orders.NewService(store, store.Orders(), store.Timeline(), nil, nil, nil,
		orders.WithCacheInvalidator(cache))

	require.NoError(t, store.Users().Create(ctx, domain.User{
		ID: "user-1", Name: "Ann", Email: "ann@bakery.test", PasswordHash: "x", Role: domain.RoleUser,
	}))
	eclair, err := svc.Create(ctx, input("Eclair", "Pastry", "2.80", 10, true))
	require.NoError(t, err)

	featured, err := svc.Featured(ctx)
	require.NoError(t, err)
	require.Len(t, featured, 1)
	byCategory, err := svc.ByCategory(ctx, "Pastry")
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, 10, featured[0].Stock)

	_, err = checkout.PlaceOrder(ctx, domain.Identity{UserID: "user-1", Role: domain.RoleUser}, domain.Cart{
		Lines: []domain.CartLine{{ProductID: eclair.ID, Quantity: 10}},
		Delivery: domain.Delivery{
			Address: "12 Rye Street", City: "Leeds", Zip: "LS1 4AB", Phone: "+44 113 496 0000",
		},
	})
	require.NoError(t, err)

	featured, err = svc.Featured(ctx)
	require.NoError(t, err)
	require.Len(t, featured, 1)
	assert.Equal(t, 0, featured[0].Stock)

	byCategory, err = svc.ByCategory(ctx, "Pastry")
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, 0, byCategory[0].Stock)
	assert.Equal(t, 2, cache.invalidations)
}

func TestService_ListDelegatesToRepository(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore().Products(), nil, 0, nil)
	for _, name := range []string{"Apple pie", "Brioche", "Ciabatta"} {
		_, err := svc.Create(ctx, input(name, "Bread", "2.00", 1, false))
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, domain.ProductFilter{SortBy: domain.SortByName, Desc: true, Size: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Ciabatta", page.Items[0].Name)
	assert.Equal(t, 3, page.TotalItems)
	assert.Equal(t, 2, page.TotalPages)
}
