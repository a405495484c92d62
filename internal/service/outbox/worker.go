package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
)

// Исходы обработки события заказа, они же значения label outcome.
const (
	OutcomePublished    = "published"
	OutcomeRetried      = "retried"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeMalformed    = "malformed"
	OutcomeDLQFailed    = "dlq_failed"
)

var (
	orderEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_order_events_total",
		Help: "Order events handled by the outbox relay grouped by event type and outcome.",
	}, []string{"event_type", "outcome"})
	outboxPendingRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bakery_outbox_pending_records",
		Help: "Order events waiting in the transactional outbox.",
	})
	outboxOldestPendingAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bakery_outbox_oldest_pending_age_seconds",
		Help: "Age in seconds of the oldest order event waiting in the outbox.",
	})
)

// Config задаёт параметры ретрансляции событий заказа. Нулевые значения заменяются
// значениями по умолчанию, отрицательный RetryBaseDelay отключает паузу между попытками.
// Без DLQ отвергнутые события только помечаются failed.
type Config struct {
	DLQ            domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Logger         *log.Entry
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	switch {
	case c.RetryBaseDelay == 0:
		c.RetryBaseDelay = defaultRetryBaseDelay
	case c.RetryBaseDelay < 0:
		c.RetryBaseDelay = 0
	}
	if c.Logger == nil {
		c.Logger = log.WithField("component", "outbox-worker")
	}
	return c
}

// Worker переносит события заказов из outbox в брокер. События пишутся в outbox
// той же транзакцией, что и заказ, поэтому наружу уходят только зафиксированные
// изменения.
//
// Перед публикацией событие сверяется с заголовком outbox: битое событие не
// ретраится и сразу уходит в DLQ. Если ctx отменён во время ретраев, событие
// остаётся pending и будет отправлено после перезапуска.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	cfg       Config
	logger    *log.Entry
	now       func() time.Time
}

// NewWorker создаёт ретранслятор событий заказа.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, cfg Config) *Worker {
	cfg = cfg.withDefaults()
	return &Worker{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg,
		logger:    cfg.Logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run опрашивает outbox с интервалом PollInterval до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// BatchResult описывает итог одного прохода по outbox.
type BatchResult struct {
	Published    int
	DeadLettered int
	Malformed    int
}

// ProcessOnce публикует одну порцию pending-событий в порядке их записи.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}

	w.refreshBacklogMetrics(ctx)

	events, err := w.repo.PullPending(ctx, w.cfg.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending order events")
		return result
	}

	for _, msg := range events {
		outcome, err := w.relay(ctx, msg)
		if err != nil {
			w.logger.WithError(err).WithField("outbox_id", msg.ID).Info("order event relay interrupted, event stays pending")
			break
		}
		switch outcome {
		case OutcomePublished:
			result.Published++
		case OutcomeDeadLettered:
			result.DeadLettered++
		case OutcomeMalformed:
			result.Malformed++
		}
	}

	if len(events) > 0 {
		w.refreshBacklogMetrics(ctx)
		w.logger.WithFields(log.Fields{
			"published":     result.Published,
			"dead_lettered": result.DeadLettered,
			"malformed":     result.Malformed,
		}).Debug("order events batch processed")
	}
	return result
}

// relay доводит одно событие до конечного состояния: sent или failed.
// Ошибка возвращается только при отмене ctx, событие тогда не трогается.
func (w *Worker) relay(ctx context.Context, msg domain.OutboxMessage) (string, error) {
	label := eventLabel(msg.EventType)
	fields := log.Fields{
		"outbox_id":  msg.ID,
		"order_id":   msg.AggregateID,
		"event_type": msg.EventType,
	}

	event, err := domain.DecodeOrderEvent(msg)
	if err != nil {
		w.logger.WithError(err).WithFields(fields).Error("malformed order event, moving to DLQ")
		orderEventsTotal.WithLabelValues(label, OutcomeMalformed).Inc()
		w.deadLetter(ctx, msg, err, 0, fields)
		return OutcomeMalformed, nil
	}
	fields["status"] = event.Status

	attempts, err := w.publishWithRetry(ctx, msg, label)
	if err == nil {
		orderEventsTotal.WithLabelValues(label, OutcomePublished).Inc()
		if err := w.repo.MarkSent(ctx, msg.ID); err != nil {
			w.logger.WithError(err).WithFields(fields).Warn("failed to mark order event as sent")
		}
		w.logger.WithFields(fields).Debug("order event published")
		return OutcomePublished, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	w.logger.WithError(err).WithFields(fields).Error("order event publish failed after retries")
	orderEventsTotal.WithLabelValues(label, OutcomeDeadLettered).Inc()
	w.deadLetter(ctx, msg, err, attempts, fields)
	return OutcomeDeadLettered, nil
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage, label string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= w.cfg.MaxAttempts; attempt++ {
		err := w.publisher.Publish(ctx, msg)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if attempt == w.cfg.MaxAttempts {
			break
		}
		orderEventsTotal.WithLabelValues(label, OutcomeRetried).Inc()

		if delay := w.retryBackoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return attempt, ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return w.cfg.MaxAttempts, fmt.Errorf("publish failed after %d attempts: %w", w.cfg.MaxAttempts, lastErr)
}

// deadLetter отправляет запись в DLQ и помечает событие failed. Событие помечается
// failed и при недоступной DLQ, чтобы не блокировать следующие события.
func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, cause error, attempts int, fields log.Fields) {
	if w.cfg.DLQ != nil {
		if err := w.publishDeadLetter(ctx, domain.NewDeadLetter(msg, cause, attempts, w.now())); err != nil {
			w.logger.WithError(err).WithFields(fields).Warn("failed to publish order event to DLQ")
			orderEventsTotal.WithLabelValues(eventLabel(msg.EventType), OutcomeDLQFailed).Inc()
		}
	}
	if err := w.repo.MarkFailed(ctx, msg.ID); err != nil {
		w.logger.WithError(err).WithFields(fields).Warn("failed to mark order event as failed")
	}
}

func (w *Worker) publishDeadLetter(ctx context.Context, letter domain.DeadLetter) error {
	dlqMsg, err := letter.Message()
	if err != nil {
		return err
	}
	if err := w.cfg.DLQ.Publish(ctx, dlqMsg); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) refreshBacklogMetrics(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}

	outboxPendingRecords.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		outboxOldestPendingAge.Set(0)
		return
	}
	outboxOldestPendingAge.Set(max(w.now().Sub(stats.OldestPendingAt).Seconds(), 0))
}

// retryBackoff удваивает базовую задержку на каждую следующую попытку.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.cfg.RetryBaseDelay <= 0 {
		return 0
	}
	const maxDuration = time.Duration(1<<63 - 1)
	delay := w.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay > maxDuration/2 {
			return maxDuration
		}
		delay *= 2
	}
	return delay
}

// eventLabel ограничивает значения label event_type известными типами событий.
func eventLabel(eventType string) string {
	switch eventType {
	case domain.EventOrderCreated, domain.EventOrderStatusChanged:
		return eventType
	default:
		return "unknown"
	}
}
