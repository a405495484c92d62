// Package httpsvc публикует REST API пекарни поверх сервисов домена.
package httpsvc

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/vladislavdragonenkov/bakery/internal/service/auth"
	"github.com/vladislavdragonenkov/bakery/internal/service/catalog"
	"github.com/vladislavdragonenkov/bakery/internal/service/idempotency"
	"github.com/vladislavdragonenkov/bakery/internal/service/orders"
	"github.com/vladislavdragonenkov/bakery/internal/service/reviews"
	"github.com/vladislavdragonenkov/bakery/internal/service/stats"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultAuthRate       = rate.Limit(5)
	defaultAuthBurst      = 10
	maxBodyBytes          = 1 << 20
)

// Deps — сервисы, которые обслуживает HTTP API.
type Deps struct {
	Auth    *auth.Service
	Catalog *catalog.Service
	Reviews *reviews.Service
	Orders  *orders.Service
	Stats   *stats.Service
	// Guard может быть nil: тогда Idempotency-Key игнорируется.
	Guard *idempotency.Guard

	Logger         *log.Entry
	RequestTimeout time.Duration
	// запросов в секунду с одного IP на /api/auth/*.
	AuthRate  rate.Limit
	AuthBurst int
}

// Handler содержит обработчики REST API.
type Handler struct {
	auth    *auth.Service
	catalog *catalog.Service
	reviews *reviews.Service
	orders  *orders.Service
	stats   *stats.Service
	guard   *idempotency.Guard
	logger  *log.Entry
}

// NewRouter собирает chi-роутер с middleware и маршрутами API.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	timeout := deps.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	authRate, authBurst := deps.AuthRate, deps.AuthBurst
	if authRate <= 0 {
		authRate = defaultAuthRate
	}
	if authBurst <= 0 {
		authBurst = defaultAuthBurst
	}

	h := &Handler{
		auth:    deps.Auth,
		catalog: deps.Catalog,
		reviews: deps.Reviews,
		orders:  deps.Orders,
		stats:   deps.Stats,
		guard:   deps.Guard,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logRequests(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	authenticated := requireAuth(deps.Auth, logger)
	limiter := newIPRateLimiter(authRate, authBurst)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(limiter.middleware(logger)).Post("/register", h.register)
			r.With(limiter.middleware(logger)).Post("/login", h.login)
			r.With(authenticated).Get("/me", h.me)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.listProducts)
			r.Get("/featured", h.featuredProducts)
			r.Get("/categories", h.categories)
			r.Get("/category/{category}", h.productsByCategory)
			r.Get("/{id}", h.getProduct)
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/product/{productId}", h.listReviews)
			r.Group(func(r chi.Router) {
				r.Use(authenticated)
				r.Post("/", h.createReview)
				r.Put("/{id}", h.updateReview)
				r.Delete("/{id}", h.deleteReview)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/", h.placeOrder)
			r.Get("/user", h.myOrders)
			r.Get("/{id}", h.getOrder)
			r.Get("/{id}/timeline", h.orderTimeline)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(authenticated, requireAdmin(logger))
			r.Post("/products", h.createProduct)
			r.Put("/products/{id}", h.updateProduct)
			r.Delete("/products/{id}", h.deleteProduct)
			r.Get("/orders", h.allOrders)
			r.Put("/orders/{id}/status", h.updateOrderStatus)
			r.Get("/dashboard/stats", h.dashboard)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: kindNotFound, Message: "route not found"})
	})

	return r
}
