package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "version conflict error", err: ErrOrderVersionConflict, want: true},
		{name: "wrapped version conflict error", err: errors.Join(ErrOrderVersionConflict, errors.New("additional context")), want: true},
		{name: "other conflict", err: ErrEmailTaken, want: false},
		{name: "other error", err: ErrOrderNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsVersionConflict(tt.err); got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind error
	}{
		{ErrUserNotFound, ErrNotFound},
		{ErrProductNotFound, ErrNotFound},
		{ErrOrderNotFound, ErrNotFound},
		{ErrReviewNotFound, ErrNotFound},
		{ErrCartEmpty, ErrInvalidRequest},
		{ErrUnknownStatus, ErrInvalidRequest},
		{ErrDeliveryPhoneInvalid, ErrInvalidRequest},
		{ErrEmailTaken, ErrConflict},
		{ErrReviewExists, ErrConflict},
		{ErrOrderVersionConflict, ErrConflict},
		{ErrConcurrentUpdate, ErrConflict},
		{ErrInvalidCredentials, ErrUnauthorized},
		{InvalidRequestf("name %s", "x"), ErrInvalidRequest},
	}

	for _, tt := range tests {
		if !errors.Is(tt.err, tt.kind) {
			t.Errorf("%v must be classified as %v", tt.err, tt.kind)
		}
	}

	if IsNotFound(ErrConflict) {
		t.Error("conflict must not be classified as not found")
	}
}

func TestInsufficientStockError(t *testing.T) {
	base := &InsufficientStockError{ProductID: "p-1", ProductName: "Croissant", Requested: 5, Available: 2}
	err := fmt.Errorf("reserve: %w", base)

	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatal("expected ErrInsufficientStock in chain")
	}

	got, ok := AsInsufficientStock(err)
	if !ok {
		t.Fatal("expected InsufficientStockError in chain")
	}
	if got.Shortfall() != 3 {
		t.Errorf("shortfall = %d, want 3", got.Shortfall())
	}
	if got.ProductID != "p-1" || got.ProductName != "Croissant" {
		t.Errorf("unexpected details: %+v", got)
	}

	if _, ok := AsInsufficientStock(ErrProductNotFound); ok {
		t.Error("not found must not be reported as insufficient stock")
	}
}
