package stats

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/service/orders"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
)

func TestDashboard(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.Users().Create(ctx, domain.User{
		ID: "user-1", Name: "Ann", Email: "ann@bakery.test", PasswordHash: "x", Role: domain.RoleUser,
	}))
	require.NoError(t, store.Users().Create(ctx, domain.User{
		ID: "admin-1", Name: "Admin", Email: "admin@bakery.test", PasswordHash: "x", Role: domain.RoleAdmin,
	}))
	for _, id := range []string{"croissant", "rye"} {
		require.NoError(t, store.Products().Create(ctx, domain.Product{
			ID: id, Name: id, Category: "bread", Price: decimal.RequireFromString("2.50"), Stock: 10,
			Rating: domain.DefaultRating,
		}))
	}

	svc := orders.NewService(store, store.Orders(), store.Timeline(), nil, nil, nil)
	buyer := domain.Identity{UserID: "user-1", Role: domain.RoleUser}
	delivery := domain.Delivery{Address: "1 Mill Lane", City: "York", Zip: "YO1 7HH", Phone: "+44 1904 000000"}

	first, err := svc.PlaceOrder(ctx, buyer, domain.Cart{
		Lines: []domain.CartLine{{ProductID: "croissant", Quantity: 2}}, Delivery: delivery,
	})
	require.NoError(t, err)
	_, err = svc.PlaceOrder(ctx, buyer, domain.Cart{
		Lines: []domain.CartLine{{ProductID: "rye", Quantity: 1}}, Delivery: delivery,
	})
	require.NoError(t, err)
	cancelled, err := svc.PlaceOrder(ctx, buyer, domain.Cart{
		Lines: []domain.CartLine{{ProductID: "rye", Quantity: 4}}, Delivery: delivery,
	})
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, first.ID, "DELIVERED")
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, cancelled.ID, "cancelled")
	require.NoError(t, err)

	dashboard := NewService(store.Orders(), store.Users(), store.Products(), 0, nil)
	stats, err := dashboard.Dashboard(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalOrders)
	assert.Equal(t, 1, stats.PendingOrders)
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, "7.50", stats.Revenue.StringFixed(2))
	assert.Equal(t, 1, stats.ByStatus[domain.OrderStatusDelivered])
	assert.Equal(t, 1, stats.ByStatus[domain.OrderStatusCancelled])
	assert.Equal(t, 0, stats.ByStatus[domain.OrderStatusReady])

	require.Len(t, stats.SalesByDate, 1)
	assert.Equal(t, 2, stats.SalesByDate[0].Orders)
	assert.Equal(t, "7.50", stats.SalesByDate[0].Revenue.StringFixed(2))
	assert.WithinDuration(t, time.Now().Add(-DefaultWindow), stats.Since, time.Minute)
}

func TestDashboard_WindowExcludesOldOrders(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	dashboard := NewService(store.Orders(), store.Users(), store.Products(), time.Hour, nil)
	dashboard.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }

	require.NoError(t, store.Users().Create(ctx, domain.User{
		ID: "user-1", Name: "Ann", Email: "ann@bakery.test", PasswordHash: "x", Role: domain.RoleUser,
	}))
	require.NoError(t, store.Products().Create(ctx, domain.Product{
		ID: "rye", Name: "rye", Category: "bread", Price: decimal.RequireFromString("4"), Stock: 5,
		Rating: domain.DefaultRating,
	}))
	svc := orders.NewService(store, store.Orders(), store.Timeline(), nil, nil, nil)
	_, err := svc.PlaceOrder(ctx, domain.Identity{UserID: "user-1", Role: domain.RoleUser}, domain.Cart{
		Lines:    []domain.CartLine{{ProductID: "rye", Quantity: 1}},
		Delivery: domain.Delivery{Address: "1 Mill Lane", City: "York", Zip: "YO1", Phone: "+44 1904 000000"},
	})
	require.NoError(t, err)

	stats, err := dashboard.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalOrders)
	assert.True(t, stats.Revenue.IsZero())
	assert.Empty(t, stats.SalesByDate)
}
