package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestIdempotencyStatusValid(t *testing.T) {
	tests := []struct {
		name   string
		status IdempotencyStatus
		want   bool
	}{
		{name: "processing", status: IdempotencyStatusProcessing, want: true},
		{name: "done", status: IdempotencyStatusDone, want: true},
		{name: "failed", status: IdempotencyStatusFailed, want: true},
		{name: "invalid", status: IdempotencyStatus("broken"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.status.Valid(); got != tc.want {
				t.Fatalf("status %q valid=%v, want %v", tc.status, got, tc.want)
			}
		})
	}
}

func TestSplitIdempotencyKey(t *testing.T) {
	tests := []struct {
		name      string
		stored    string
		wantScope string
		wantKey   string
		wantErr   error
	}{
		{name: "scoped", stored: "user-1:checkout-1", wantScope: "user-1", wantKey: "checkout-1"},
		{name: "colon inside client key", stored: "user-1:cart:42", wantScope: "user-1", wantKey: "cart:42"},
		{name: "padded", stored: "  user-1:k  ", wantScope: "user-1", wantKey: "k"},
		{name: "empty", stored: "   ", wantErr: ErrIdempotencyKeyRequired},
		{name: "no scope", stored: "checkout-1", wantErr: ErrIdempotencyKeyUnscoped},
		{name: "empty scope", stored: ":checkout-1", wantErr: ErrIdempotencyKeyUnscoped},
		{name: "empty client key", stored: "user-1:", wantErr: ErrIdempotencyKeyRequired},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			scope, key, err := SplitIdempotencyKey(tc.stored)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("SplitIdempotencyKey(%q) err=%v, want %v", tc.stored, err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitIdempotencyKey(%q): %v", tc.stored, err)
			}
			if scope != tc.wantScope || key != tc.wantKey {
				t.Fatalf("SplitIdempotencyKey(%q) = %q, %q; want %q, %q", tc.stored, scope, key, tc.wantScope, tc.wantKey)
			}
			if got := ScopedIdempotencyKey(scope, key); got != strings.TrimSpace(tc.stored) {
				t.Fatalf("ScopedIdempotencyKey round trip = %q", got)
			}
		})
	}

	if !errors.Is(ErrIdempotencyKeyUnscoped, ErrInvalidRequest) {
		t.Fatal("unscoped key must be an invalid request")
	}
}
