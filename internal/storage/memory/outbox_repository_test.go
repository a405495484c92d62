package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

func enqueue(t *testing.T, s *Store, msgs ...domain.OutboxMessage) {
	t.Helper()
	err := s.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		for _, msg := range msgs {
			if err := tx.Enqueue(ctx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
}

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	store := NewStore()
	repo := store.Outbox()
	ctx := context.Background()

	enqueue(t, store,
		domain.OutboxMessage{AggregateType: "order", AggregateID: "order-1", EventType: "order.created"},
		domain.OutboxMessage{AggregateType: "order", AggregateID: "order-1", EventType: "order.status_changed"},
	)

	pending, err := repo.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].EventType != "order.created" || pending[0].ID == "" {
		t.Fatalf("expected insertion order with generated id, got %+v", pending[0])
	}

	limited, _ := repo.PullPending(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	store := NewStore()
	repo := store.Outbox()
	ctx := context.Background()

	enqueue(t, store, domain.OutboxMessage{ID: "m-1"}, domain.OutboxMessage{ID: "m-2"})

	if err := repo.MarkSent(ctx, "m-1"); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	if err := repo.MarkFailed(ctx, "m-2"); err != nil {
		t.Fatalf("mark failed failed: %v", err)
	}
	if len(repo.Pending()) != 0 {
		t.Fatal("expected no pending messages")
	}
	if err := repo.MarkSent(ctx, "missing"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOutboxRepository_RolledBackMessagesAreInvisible(t *testing.T) {
	store := NewStore()
	boom := errors.New("boom")

	err := store.WithinTx(context.Background(), func(ctx context.Context, tx domain.Tx) error {
		if err := tx.Enqueue(ctx, domain.OutboxMessage{EventType: "order.created"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(store.Outbox().Pending()) != 0 {
		t.Fatal("rolled back message must not be visible")
	}
}
