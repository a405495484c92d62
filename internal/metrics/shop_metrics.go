package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исходы резервирования остатков.
const (
	ReservationReserved     = "reserved"
	ReservationInsufficient = "insufficient"
	ReservationNotFound     = "not_found"
)

// ShopMetrics содержит метрики оформления и обработки заказов.
type ShopMetrics struct {
	// Счётчики заказов
	ordersPlaced    prometheus.Counter
	checkoutFailed  *prometheus.CounterVec
	statusChanged   *prometheus.CounterVec
	reservedUnits   prometheus.Counter
	reservations    *prometheus.CounterVec
	checkoutLatency prometheus.Histogram

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	// Gauge для оформляемых прямо сейчас заказов
	checkoutsInFlight prometheus.Gauge
}

// NewShopMetrics создаёт метрики в DefaultRegisterer.
func NewShopMetrics() *ShopMetrics {
	return NewShopMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewShopMetricsWithRegisterer создаёт метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewShopMetricsWithRegisterer(registerer prometheus.Registerer) *ShopMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ShopMetrics{
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_orders_placed_total",
			Help: "Total number of orders placed successfully",
		}),
		checkoutFailed: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_checkout_failed_total",
			Help: "Total number of rejected checkouts by reason",
		}, []string{"reason"}),
		statusChanged: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_order_status_changes_total",
			Help: "Total number of order status changes by target status",
		}, []string{"status"}),
		reservedUnits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_stock_reserved_units_total",
			Help: "Total number of product units taken from stock",
		}),
		reservations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "bakery_stock_reservations_total",
			Help: "Total number of cart reservations by outcome",
		}, []string{"outcome"}),
		checkoutLatency: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "bakery_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "bakery_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		checkoutsInFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "bakery_checkouts_in_flight",
			Help: "Number of checkouts currently being processed",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// Методы безопасно вызывать на nil: сервисы в тестах работают без метрик.

// RecordCheckoutStarted отмечает начало оформления заказа.
func (m *ShopMetrics) RecordCheckoutStarted() {
	if m == nil {
		return
	}
	m.checkoutsInFlight.Inc()
}

// RecordCheckoutFinished записывает длительность оформления и снимает его из in-flight.
func (m *ShopMetrics) RecordCheckoutFinished(duration time.Duration) {
	if m == nil {
		return
	}
	m.checkoutsInFlight.Dec()
	m.checkoutLatency.Observe(duration.Seconds())
}

// RecordOrderPlaced увеличивает счётчик оформленных заказов.
func (m *ShopMetrics) RecordOrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// RecordCheckoutFailed увеличивает счётчик отказов с указанной причиной.
func (m *ShopMetrics) RecordCheckoutFailed(reason string) {
	if m == nil {
		return
	}
	m.checkoutFailed.WithLabelValues(reason).Inc()
}

// RecordStatusChanged учитывает смену статуса заказа.
func (m *ShopMetrics) RecordStatusChanged(status string) {
	if m == nil {
		return
	}
	m.statusChanged.WithLabelValues(status).Inc()
}

// RecordReservation учитывает исход резервирования корзины и число списанных единиц.
func (m *ShopMetrics) RecordReservation(outcome string, units int) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
	if units > 0 {
		m.reservedUnits.Add(float64(units))
	}
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *ShopMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *ShopMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// OrdersPlacedCounter отдаёт счётчик оформленных заказов для проверок в тестах.
func (m *ShopMetrics) OrdersPlacedCounter() prometheus.Counter {
	return m.ordersPlaced
}

// CheckoutFailedCounter отдаёт счётчик отказов с указанной причиной.
func (m *ShopMetrics) CheckoutFailedCounter(reason string) prometheus.Counter {
	return m.checkoutFailed.WithLabelValues(reason)
}
