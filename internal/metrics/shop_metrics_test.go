package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewShopMetricsWithRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewShopMetricsWithRegisterer(reg)
	if m == nil {
		t.Fatal("NewShopMetricsWithRegisterer should not return nil")
	}

	// повторная регистрация отдаёт существующие коллекторы
	again := NewShopMetricsWithRegisterer(reg)
	if again.ordersPlaced != m.ordersPlaced {
		t.Fatal("expected registered counter to be reused")
	}
	if again.checkoutFailed != m.checkoutFailed {
		t.Fatal("expected registered counter vec to be reused")
	}
}

func TestRecordCheckout(t *testing.T) {
	m := NewShopMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCheckoutStarted()
	m.RecordCheckoutStarted()
	if got := gaugeValue(t, m.checkoutsInFlight); got != 2 {
		t.Fatalf("expected 2 checkouts in flight, got %v", got)
	}

	m.RecordCheckoutFinished(10 * time.Millisecond)
	m.RecordOrderPlaced()
	if got := gaugeValue(t, m.checkoutsInFlight); got != 1 {
		t.Fatalf("expected 1 checkout in flight, got %v", got)
	}
	if got := counterValue(t, m.ordersPlaced); got != 1 {
		t.Fatalf("expected 1 placed order, got %v", got)
	}

	var metric dto.Metric
	if err := m.checkoutLatency.Write(&metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() != 1 {
		t.Fatalf("expected 1 latency sample, got %d", metric.GetHistogram().GetSampleCount())
	}
}

func TestRecordLabelledCounters(t *testing.T) {
	m := NewShopMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCheckoutFailed("insufficient_stock")
	m.RecordCheckoutFailed("insufficient_stock")
	m.RecordStatusChanged("CONFIRMED")
	m.RecordReservation(ReservationReserved, 3)
	m.RecordReservation(ReservationInsufficient, 0)

	if got := counterValue(t, m.checkoutFailed.WithLabelValues("insufficient_stock")); got != 2 {
		t.Fatalf("expected 2 failures, got %v", got)
	}
	if got := counterValue(t, m.statusChanged.WithLabelValues("CONFIRMED")); got != 1 {
		t.Fatalf("expected 1 status change, got %v", got)
	}
	if got := counterValue(t, m.reservedUnits); got != 3 {
		t.Fatalf("expected 3 reserved units, got %v", got)
	}
	if got := counterValue(t, m.reservations.WithLabelValues(ReservationInsufficient)); got != 1 {
		t.Fatalf("expected 1 insufficient reservation, got %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *ShopMetrics
	m.RecordCheckoutStarted()
	m.RecordCheckoutFinished(time.Second)
	m.RecordOrderPlaced()
	m.RecordCheckoutFailed("x")
	m.RecordStatusChanged("x")
	m.RecordReservation(ReservationReserved, 1)
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("write counter: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return metric.GetGauge().GetValue()
}
