package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
	"github.com/vladislavdragonenkov/bakery/internal/storage/memory"
)

var eventTime = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func orderEvent(t *testing.T, outboxID, orderID, eventType string, status, previous domain.OrderStatus) domain.OutboxMessage {
	t.Helper()
	msg, err := domain.NewOrderEventMessage(eventType, domain.Order{
		ID:         orderID,
		UserID:     "user-1",
		Status:     status,
		TotalPrice: decimal.RequireFromString("7.00"),
		Items:      []domain.OrderItem{{ProductID: "croissant", Quantity: 2}},
	}, previous, eventTime)
	require.NoError(t, err)
	msg.ID = outboxID
	return msg
}

func TestWorker_ProcessOnce_PublishesOrderEvents(t *testing.T) {
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		orderEvent(t, "msg-1", "order-1", domain.EventOrderCreated, domain.OrderStatusPending, ""),
		orderEvent(t, "msg-2", "order-1", domain.EventOrderStatusChanged, domain.OrderStatusConfirmed, domain.OrderStatusPending),
	}}
	publisher := &stubPublisher{}
	published := testutil.ToFloat64(orderEventsTotal.WithLabelValues(domain.EventOrderStatusChanged, OutcomePublished))

	worker := NewWorker(repo, publisher, Config{MaxAttempts: 3, RetryBaseDelay: -1})
	result := worker.ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Published: 2}, result)
	assert.Equal(t, []string{"msg-1", "msg-2"}, repo.sentIDs)
	assert.Empty(t, repo.failedIDs)
	assert.Equal(t, 2, publisher.calls())
	assert.Equal(t, published+1, testutil.ToFloat64(orderEventsTotal.WithLabelValues(domain.EventOrderStatusChanged, OutcomePublished)))
}

func TestWorker_ProcessOnce_DeadLettersAfterRetries(t *testing.T) {
	msg := orderEvent(t, "msg-2", "order-2", domain.EventOrderStatusChanged, domain.OrderStatusCancelled, domain.OrderStatusPending)
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{msg}}
	publisher := &stubPublisher{err: errors.New("broker not available")}
	dlq := &stubPublisher{}
	retried := testutil.ToFloat64(orderEventsTotal.WithLabelValues(domain.EventOrderStatusChanged, OutcomeRetried))

	worker := NewWorker(repo, publisher, Config{DLQ: dlq, MaxAttempts: 3, RetryBaseDelay: -1})
	worker.now = func() time.Time { return eventTime.Add(time.Minute) }

	result := worker.ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{DeadLettered: 1}, result)
	assert.Equal(t, 3, publisher.calls())
	assert.Empty(t, repo.sentIDs)
	require.Equal(t, []string{"msg-2"}, repo.failedIDs)
	assert.Equal(t, retried+2, testutil.ToFloat64(orderEventsTotal.WithLabelValues(domain.EventOrderStatusChanged, OutcomeRetried)))

	require.Equal(t, 1, dlq.calls())
	dlqMsg := dlq.last()
	assert.Equal(t, "msg-2", dlqMsg.ID)
	assert.Equal(t, "order-2", dlqMsg.AggregateID)

	var letter domain.DeadLetter
	require.NoError(t, json.Unmarshal(dlqMsg.Payload, &letter))
	assert.Equal(t, "publish failed after 3 attempts: broker not available", letter.PublishError)
	assert.Equal(t, 3, letter.Attempts)
	assert.True(t, eventTime.Add(time.Minute).Equal(letter.DLQPublishedAt))
	assert.JSONEq(t, string(msg.Payload), string(letter.Original().Payload))
}

func TestWorker_ProcessOnce_MalformedEventSkipsRetries(t *testing.T) {
	foreign := orderEvent(t, "msg-bad", "order-1", domain.EventOrderCreated, domain.OrderStatusPending, "")
	foreign.AggregateID = "order-9"
	broken := domain.OutboxMessage{
		ID: "msg-broken", AggregateType: domain.AggregateOrder, AggregateID: "order-3",
		EventType: domain.EventOrderCreated, Payload: []byte("{not json"),
	}
	valid := orderEvent(t, "msg-ok", "order-4", domain.EventOrderCreated, domain.OrderStatusPending, "")

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{foreign, broken, valid}}
	publisher := &stubPublisher{}
	dlq := &stubPublisher{}

	result := NewWorker(repo, publisher, Config{DLQ: dlq}).ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Published: 1, Malformed: 2}, result)
	assert.Equal(t, 1, publisher.calls(), "malformed events must not reach the order topic")
	assert.Equal(t, []string{"msg-bad", "msg-broken"}, repo.failedIDs)
	assert.Equal(t, []string{"msg-ok"}, repo.sentIDs)
	require.Equal(t, 2, dlq.calls())

	var letter domain.DeadLetter
	require.NoError(t, json.Unmarshal(dlq.last().Payload, &letter))
	assert.Zero(t, letter.Attempts)
	assert.Contains(t, letter.PublishError, domain.ErrMalformedEvent.Error())
	assert.JSONEq(t, `"{not json"`, string(letter.Payload))
}

func TestWorker_ProcessOnce_SuccessAfterRetry(t *testing.T) {
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		orderEvent(t, "msg-3", "order-3", domain.EventOrderCreated, domain.OrderStatusPending, ""),
	}}
	publisher := &stubPublisher{sequenceErrors: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	result := NewWorker(repo, publisher, Config{MaxAttempts: 3, RetryBaseDelay: -1}).ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Published: 1}, result)
	assert.Equal(t, 3, publisher.calls())
	assert.Equal(t, []string{"msg-3"}, repo.sentIDs)
	assert.Empty(t, repo.failedIDs)
}

func TestWorker_ProcessOnce_CancelLeavesEventPending(t *testing.T) {
	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{
		orderEvent(t, "msg-4", "order-4", domain.EventOrderCreated, domain.OrderStatusPending, ""),
		orderEvent(t, "msg-5", "order-5", domain.EventOrderCreated, domain.OrderStatusPending, ""),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	publisher := &stubPublisher{err: errors.New("broker not available"), onPublish: cancel}
	dlq := &stubPublisher{}

	worker := NewWorker(repo, publisher, Config{DLQ: dlq, MaxAttempts: 5, RetryBaseDelay: time.Hour})
	result := worker.ProcessOnce(ctx)

	assert.Equal(t, BatchResult{}, result)
	assert.Equal(t, 1, publisher.calls())
	assert.Empty(t, repo.sentIDs)
	assert.Empty(t, repo.failedIDs, "interrupted event must stay pending")
	assert.Zero(t, dlq.calls())
}

func TestWorker_ProcessOnce_MemoryOutbox(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.WithinTx(ctx, func(ctx context.Context, tx domain.Tx) error {
		for _, id := range []string{"order-1", "order-2"} {
			if err := tx.Enqueue(ctx, orderEvent(t, "", id, domain.EventOrderCreated, domain.OrderStatusPending, "")); err != nil {
				return err
			}
		}
		return nil
	}))

	publisher := &stubPublisher{}
	worker := NewWorker(store.Outbox(), publisher, Config{})

	assert.Equal(t, BatchResult{Published: 2}, worker.ProcessOnce(ctx))
	assert.Empty(t, store.Outbox().Pending())
	assert.Equal(t, BatchResult{}, worker.ProcessOnce(ctx))
	assert.Equal(t, 2, publisher.calls())
}

func TestWorker_RetryBackoff(t *testing.T) {
	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, Config{RetryBaseDelay: 10 * time.Millisecond})
	assert.Equal(t, 10*time.Millisecond, worker.retryBackoff(1))
	assert.Equal(t, 20*time.Millisecond, worker.retryBackoff(2))
	assert.Equal(t, 40*time.Millisecond, worker.retryBackoff(3))

	noDelay := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, Config{RetryBaseDelay: -1})
	assert.Zero(t, noDelay.retryBackoff(5))
}

func TestEventLabel(t *testing.T) {
	assert.Equal(t, domain.EventOrderCreated, eventLabel(domain.EventOrderCreated))
	assert.Equal(t, domain.EventOrderStatusChanged, eventLabel(domain.EventOrderStatusChanged))
	assert.Equal(t, "unknown", eventLabel("invoice.paid"))
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, Config{PollInterval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(_ context.Context) (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(s.pending)}
	if len(s.pending) > 0 {
		stats.OldestPendingAt = time.Now().UTC().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu             sync.Mutex
	err            error
	sequenceErrors []error
	onPublish      func()
	callCount      int
	published      []domain.OutboxMessage
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.published = append(s.published, msg)
	if s.onPublish != nil {
		s.onPublish()
	}
	if len(s.sequenceErrors) > 0 {
		err := s.sequenceErrors[0]
		s.sequenceErrors = s.sequenceErrors[1:]
		return err
	}
	return s.err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

func (s *stubPublisher) last() domain.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.published[len(s.published)-1]
}

var _ domain.OutboxRepository = (*stubOutboxRepo)(nil)
var _ domain.OutboxPublisher = (*stubPublisher)(nil)
