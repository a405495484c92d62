package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	defaultSweepInterval  = 10 * time.Minute
	defaultSweepBatchSize = 500

	// unscopedBucket собирает ключи, записанные без пользователя.
	unscopedBucket = "unscoped"
)

var (
	checkoutKeysSweepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_checkout_keys_sweeps_total",
		Help: "Sweeps of expired checkout idempotency keys grouped by result.",
	}, []string{"result"})
	checkoutKeysExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_checkout_keys_expired_total",
		Help: "Expired checkout idempotency keys removed by the sweeper.",
	})
	checkoutKeysLastSweepUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bakery_checkout_keys_last_sweep_users",
		Help: "Distinct users whose checkout keys were removed by the last sweep.",
	})
	checkoutKeysUnscopedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bakery_checkout_keys_unscoped_total",
		Help: "Removed checkout keys that were stored without a user scope.",
	})
)

// CleanupConfig задаёт период и размер порции очистки. Нулевые значения
// заменяются значениями по умолчанию.
type CleanupConfig struct {
	Interval  time.Duration
	BatchSize int
	Logger    *log.Entry
}

// SweepReport описывает один проход очистки ключей оформления заказа.
type SweepReport struct {
	Deleted int
	// ByUser: пользователь -> число удалённых ключей.
	ByUser map[string]int
}

// Users возвращает число пользователей, чьи ключи были удалены.
func (r SweepReport) Users() int {
	return len(r.ByUser)
}

// CleanupWorker удаляет истёкшие ключи оформления заказа и считает их по пользователям.
// Истёкший ключ занимается заново и без очистки, воркер только не даёт таблице расти.
type CleanupWorker struct {
	repo   domain.IdempotencyRepository
	cfg    CleanupConfig
	logger *log.Entry
}

// NewCleanupWorker создаёт воркер очистки ключей.
func NewCleanupWorker(repo domain.IdempotencyRepository, cfg CleanupConfig) *CleanupWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultSweepBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithField("component", "idempotency-cleanup")
	}
	return &CleanupWorker{repo: repo, cfg: cfg, logger: logger}
}

// Run запускает очистку сразу и затем раз в Interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		w.sweepAndReport(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) sweepAndReport(ctx context.Context) {
	report, err := w.Sweep(ctx, time.Now().UTC())
	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		checkoutKeysSweepsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).WithField("deleted", report.Deleted).Warn("checkout keys sweep failed")
		return
	}

	checkoutKeysSweepsTotal.WithLabelValues("ok").Inc()
	checkoutKeysLastSweepUsers.Set(float64(report.Users()))
	if report.Deleted == 0 {
		return
	}
	w.logger.WithFields(log.Fields{
		"deleted": report.Deleted,
		"users":   report.Users(),
	}).Info("expired checkout keys removed")
	if w.logger.Logger.IsLevelEnabled(log.DebugLevel) {
		for user, n := range report.ByUser {
			w.logger.WithFields(log.Fields{"user_id": user, "deleted": n}).Debug("expired checkout keys of user removed")
		}
	}
}

// Sweep удаляет порциями по BatchSize все ключи с ttl <= before. При ошибке
// возвращается отчёт об уже удалённых ключах.
func (w *CleanupWorker) Sweep(ctx context.Context, before time.Time) (SweepReport, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	report := SweepReport{ByUser: make(map[string]int)}
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		keys, err := w.repo.DeleteExpired(ctx, before, w.cfg.BatchSize)
		if err != nil {
			return report, err
		}
		for _, stored := range keys {
			report.ByUser[userOf(stored)]++
		}
		report.Deleted += len(keys)
		checkoutKeysExpiredTotal.Add(float64(len(keys)))

		if len(keys) < w.cfg.BatchSize {
			return report, nil
		}
	}
}

// userOf достаёт пользователя из ключа хранилища.
func userOf(stored string) string {
	user, _, err := domain.SplitIdempotencyKey(stored)
	if err != nil {
		checkoutKeysUnscopedTotal.Inc()
		return unscopedBucket
	}
	return user
}
