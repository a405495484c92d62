package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// checkoutKeys хранит ключи оформления заказа с разбивкой по пользователям:
// scope -> клиентский ключ -> запись.
type checkoutKeys struct {
	mu     sync.RWMutex
	scopes map[string]map[string]domain.IdempotencyRecord
	now    func() time.Time
}

// NewIdempotencyRepository создаёт in-memory реализацию IdempotencyRepository.
// Принимаются только ключи вида scope:key.
func NewIdempotencyRepository() domain.IdempotencyRepository {
	return &checkoutKeys{
		scopes: make(map[string]map[string]domain.IdempotencyRecord),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *checkoutKeys) CreateProcessing(_ context.Context, stored, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	scope, key, err := domain.SplitIdempotencyKey(stored)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	requestHash = strings.TrimSpace(requestHash)
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyRequestHashRequired
	}

	now := r.now()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.scopes[scope]
	if bucket == nil {
		bucket = make(map[string]domain.IdempotencyRecord)
		r.scopes[scope] = bucket
	}

	// истёкший ключ занимается заново, не дожидаясь очистки
	if existing, ok := bucket[key]; ok && existing.TTLAt.After(now) {
		if existing.RequestHash != requestHash {
			return copyRecord(existing), domain.ErrIdempotencyHashMismatch
		}
		return copyRecord(existing), domain.ErrIdempotencyKeyAlreadyExists
	}

	record := domain.IdempotencyRecord{
		Key:         domain.ScopedIdempotencyKey(scope, key),
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	bucket[key] = record
	return copyRecord(record), nil
}

func (r *checkoutKeys) Get(_ context.Context, stored string) (domain.IdempotencyRecord, error) {
	scope, key, err := domain.SplitIdempotencyKey(stored)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.scopes[scope][key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return copyRecord(record), nil
}

func (r *checkoutKeys) MarkDone(_ context.Context, stored string, responseBody []byte, httpStatus int) error {
	return r.complete(stored, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *checkoutKeys) MarkFailed(_ context.Context, stored string, responseBody []byte, httpStatus int) error {
	return r.complete(stored, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

// DeleteExpired удаляет истёкшие ключи в порядке ttl, как и PostgreSQL-реализация.
// Пустые корзины пользователей удаляются вместе с последним ключом.
func (r *checkoutKeys) DeleteExpired(_ context.Context, before time.Time, limit int) ([]string, error) {
	if before.IsZero() {
		before = r.now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	type expired struct {
		scope, key string
		ttlAt      time.Time
	}
	var victims []expired
	for scope, bucket := range r.scopes {
		for key, record := range bucket {
			if !record.TTLAt.After(before) {
				victims = append(victims, expired{scope: scope, key: key, ttlAt: record.TTLAt})
			}
		}
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].ttlAt.Equal(victims[j].ttlAt) {
			return domain.ScopedIdempotencyKey(victims[i].scope, victims[i].key) < domain.ScopedIdempotencyKey(victims[j].scope, victims[j].key)
		}
		return victims[i].ttlAt.Before(victims[j].ttlAt)
	})
	if limit > 0 && len(victims) > limit {
		victims = victims[:limit]
	}

	deleted := make([]string, 0, len(victims))
	for _, v := range victims {
		delete(r.scopes[v.scope], v.key)
		if len(r.scopes[v.scope]) == 0 {
			delete(r.scopes, v.scope)
		}
		deleted = append(deleted, domain.ScopedIdempotencyKey(v.scope, v.key))
	}
	return deleted, nil
}

func (r *checkoutKeys) complete(stored string, status domain.IdempotencyStatus, responseBody []byte, httpStatus int) error {
	scope, key, err := domain.SplitIdempotencyKey(stored)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.scopes[scope][key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResponseBody = append([]byte(nil), responseBody...)
	record.HTTPStatus = httpStatus
	record.UpdatedAt = r.now()
	r.scopes[scope][key] = record
	return nil
}

func copyRecord(src domain.IdempotencyRecord) domain.IdempotencyRecord {
	dst := src
	dst.ResponseBody = append([]byte(nil), src.ResponseBody...)
	return dst
}

var _ domain.IdempotencyRepository = (*checkoutKeys)(nil)
