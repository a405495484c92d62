package app

import (
	"context"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/bakery/internal/metrics"
	"github.com/vladislavdragonenkov/bakery/internal/service/auth"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	httpsvc "github.com/vladislavdragonenkov/bakery/internal/service/http"
	"github.com/vladislavdragonenkov/bakery/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bakery/internal/service/orders"
	"github.com/vladislavdragonenkov/bakery/internal/service/reviews"
	"github.com/vladislavdragonenkov/bakery/internal/service/stats"
)

// Dependencies содержит сервисы приложения поверх выбранного хранилища.
type Dependencies struct {
	Auth    *auth.Service
	Catalog *catalog.Service
	Reviews *reviews.Service
	Orders  *orders.Service
	Stats   *stats.Service
	Guard   *idempotency.Guard
	Metrics *metrics.ShopMetrics
	// Cache равен nil, если Redis не настроен или недоступен.
	Cache *catalog.RedisCache

	Logger *log.Entry
}

// NewDependencies собирает сервисы. cache может быть nil.
func NewDependencies(rt *runtimeDependencies, cache *catalog.RedisCache, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	authSvc, err := auth.NewService(rt.users, cfg.JWTSecret,
		auth.WithTokenTTL(cfg.JWTTTL),
		auth.WithLogger(logger.WithField("component", "auth")),
	)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	// nil-указатель в интерфейсе не равен nil, поэтому кэш передаётся явно.
	var (
		catalogCache catalog.Cache
		invalidator  reviews.Invalidator
		orderOptions []orders.Option
	)
	if cache != nil {
		catalogCache = cache
		invalidator = cache
		orderOptions = append(orderOptions, orders.WithCacheInvalidator(cache))
	}

	shopMetrics := metrics.NewShopMetrics()
	ordersSvc := orders.NewService(rt.txManager, rt.orders, rt.timeline, nil, logger.WithField("component", "orders"), shopMetrics, orderOptions...)
	catalogSvc := catalog.NewService(rt.products, catalogCache, cfg.CacheTTL, logger.WithField("component", "catalog"))
	reviewsSvc := reviews.NewService(rt.txManager, rt.reviews, invalidator, logger.WithField("component", "reviews"))
	statsSvc := stats.NewService(rt.orders, rt.users, rt.products, stats.DefaultWindow, logger.WithField("component", "stats"))
	guard := idempotency.NewGuard(rt.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "idempotency-guard"))

	return &Dependencies{
		Auth:    authSvc,
		Catalog: catalogSvc,
		Reviews: reviewsSvc,
		Orders:  ordersSvc,
		Stats:   statsSvc,
		Guard:   guard,
		Metrics: shopMetrics,
		Cache:   cache,
		Logger:  logger,
	}, nil
}

// Router собирает HTTP API поверх сервисов.
func (d *Dependencies) Router(cfg Config) http.Handler {
	return httpsvc.NewRouter(httpsvc.Deps{
		Auth:      d.Auth,
		Catalog:   d.Catalog,
		Reviews:   d.Reviews,
		Orders:    d.Orders,
		Stats:     d.Stats,
		Guard:     d.Guard,
		Logger:    d.Logger.WithField("component", "http"),
		AuthRate:  rate.Limit(cfg.AuthRateLimit),
		AuthBurst: cfg.AuthRateBurst,
	})
}

// initCache подключает Redis. Недоступный Redis не мешает запуску: каталог работает без кэша.
func initCache(ctx context.Context, addr string, logger *log.Entry) *catalog.RedisCache {
	if addr == "" {
		return nil
	}
	cache, err := catalog.NewRedisCache(ctx, addr)
	if err != nil {
		logger.WithError(err).WithField("addr", addr).Warn("redis is unavailable, catalog cache disabled")
		return nil
	}
	logger.WithField("addr", addr).Info("catalog cache connected")
	return cache
}
