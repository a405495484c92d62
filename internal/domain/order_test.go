package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:         "order-1",
		UserID:     "user-1",
		Status:     domain.OrderStatusPending,
		TotalPrice: decimal.RequireFromString("7.00"),
		Items: []domain.OrderItem{
			{
				ID:          "item-1",
				ProductID:   "product-1",
				ProductName: "Sourdough",
				Quantity:    2,
				UnitPrice:   decimal.RequireFromString("3.50"),
				CreatedAt:   now,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{name: "no user", mut: func(o *domain.Order) { o.UserID = "" }},
		{name: "no items", mut: func(o *domain.Order) { o.Items = nil }},
		{name: "qty invalid", mut: func(o *domain.Order) { o.Items[0].Quantity = 0 }},
		{name: "price invalid", mut: func(o *domain.Order) { o.Items[0].UnitPrice = decimal.NewFromInt(-1) }},
		{name: "total mismatch", mut: func(o *domain.Order) { o.TotalPrice = decimal.RequireFromString("7.01") }},
		{name: "unknown status", mut: func(o *domain.Order) { o.Status = "LOST" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)
			if errs := order.ValidateInvariants(); len(errs) == 0 {
				t.Fatalf("expected validation errors for %s", tc.name)
			}
		})
	}
}

func TestCalculateTotal(t *testing.T) {
	items := []domain.OrderItem{
		{Quantity: 2, UnitPrice: decimal.RequireFromString("3.50")},
		{Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
	}
	got := domain.CalculateTotal(items)
	if !got.Equal(decimal.RequireFromString("7.30")) {
		t.Fatalf("total = %s, want 7.30", got)
	}
	if !domain.CalculateTotal(nil).IsZero() {
		t.Fatal("empty total must be zero")
	}
}

func TestParseOrderStatus(t *testing.T) {
	for _, status := range domain.OrderStatuses {
		got, err := domain.ParseOrderStatus(string(status))
		if err != nil || got != status {
			t.Fatalf("parse %q: got %q, %v", status, got, err)
		}
	}

	got, err := domain.ParseOrderStatus("  confirmed ")
	if err != nil || got != domain.OrderStatusConfirmed {
		t.Fatalf("expected lenient parse, got %q, %v", got, err)
	}

	for _, name := range []string{"NOT_A_STATUS", "", "CANCELED"} {
		if _, err := domain.ParseOrderStatus(name); !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("parse %q: expected invalid request, got %v", name, err)
		}
	}
}

func TestOrderCloneDetachesItems(t *testing.T) {
	order := makeOrder()
	clone := order.Clone()
	clone.Items[0].Quantity = 99
	if order.Items[0].Quantity != 2 {
		t.Fatal("clone must not share items with the original")
	}
}
