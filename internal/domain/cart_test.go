package domain

import (
	"errors"
	"testing"
)

func validCart() Cart {
	return Cart{
		Lines: []CartLine{{ProductID: "p-1", Quantity: 2}},
		Delivery: Delivery{
			Address: "12 Baker St",
			City:    "London",
			Zip:     "NW1 6XE",
			Phone:   "+44 20 7946-0958",
		},
	}
}

func TestCartValidate(t *testing.T) {
	if err := validCart().Validate(); err != nil {
		t.Fatalf("expected valid cart, got %v", err)
	}

	cases := []struct {
		name string
		mut  func(c *Cart)
		want error
	}{
		{name: "empty", mut: func(c *Cart) { c.Lines = nil }, want: ErrCartEmpty},
		{name: "zero qty", mut: func(c *Cart) { c.Lines[0].Quantity = 0 }, want: ErrItemQtyInvalid},
		{name: "blank product", mut: func(c *Cart) { c.Lines[0].ProductID = " " }, want: ErrProductIDRequired},
		{name: "blank address", mut: func(c *Cart) { c.Delivery.Address = "" }, want: ErrInvalidRequest},
		{name: "blank city", mut: func(c *Cart) { c.Delivery.City = "\t" }, want: ErrInvalidRequest},
		{name: "blank zip", mut: func(c *Cart) { c.Delivery.Zip = "" }, want: ErrInvalidRequest},
		{name: "blank phone", mut: func(c *Cart) { c.Delivery.Phone = "" }, want: ErrInvalidRequest},
		{name: "short phone", mut: func(c *Cart) { c.Delivery.Phone = "12345" }, want: ErrDeliveryPhoneInvalid},
		{name: "letters in phone", mut: func(c *Cart) { c.Delivery.Phone = "call-me-maybe-now" }, want: ErrDeliveryPhoneInvalid},
		{name: "long phone", mut: func(c *Cart) { c.Delivery.Phone = "123456789012345678901" }, want: ErrDeliveryPhoneInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cart := validCart()
			tc.mut(&cart)
			err := cart.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("cart errors must be invalid requests, got %v", err)
			}
		})
	}
}

func TestDeliveryNotesOptional(t *testing.T) {
	cart := validCart()
	cart.Delivery.Notes = ""
	cart.Delivery.Phone = "5551234567"
	if err := cart.Validate(); err != nil {
		t.Fatalf("notes are optional, got %v", err)
	}
}

func TestCartNormalizedTrimsIDsAndDelivery(t *testing.T) {
	cart := validCart()
	cart.Lines[0].ProductID = "  p-1\t"
	cart.Delivery.Phone = " +44 20 7946-0958 "
	cart.Delivery.City = " London "

	if err := cart.Validate(); err != nil {
		t.Fatalf("padded cart must validate, got %v", err)
	}

	normalized := cart.Normalized()
	if normalized.Lines[0].ProductID != "p-1" {
		t.Fatalf("expected trimmed product id, got %q", normalized.Lines[0].ProductID)
	}
	if normalized.Delivery.Phone != "+44 20 7946-0958" || normalized.Delivery.City != "London" {
		t.Fatalf("expected trimmed delivery, got %+v", normalized.Delivery)
	}
	if cart.Lines[0].ProductID != "  p-1\t" {
		t.Fatal("normalization must not modify the original cart")
	}
}
