package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён и ответ сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

var (
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = fmt.Errorf("idempotency key %w", ErrNotFound)
	// Ключ уже занят запросом с тем же телом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// Ключ переиспользован для другого тела запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// Ключ в хранилище должен иметь вид scope:key.
	ErrIdempotencyKeyUnscoped = fmt.Errorf("%w: idempotency key must be scoped by user", ErrInvalidRequest)
)

// IdempotencyScopeSeparator отделяет пользователя от клиентского ключа.
const IdempotencyScopeSeparator = ":"

// ScopedIdempotencyKey собирает ключ хранилища: один и тот же клиентский ключ
// разных пользователей не пересекается.
func ScopedIdempotencyKey(scope, key string) string {
	return scope + IdempotencyScopeSeparator + key
}

// SplitIdempotencyKey разбирает ключ хранилища на пользователя и клиентский ключ.
// Разделителем считается первое двоеточие, в самом клиентском ключе двоеточия допустимы.
func SplitIdempotencyKey(stored string) (scope, key string, err error) {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return "", "", ErrIdempotencyKeyRequired
	}
	scope, key, ok := strings.Cut(stored, IdempotencyScopeSeparator)
	switch {
	case !ok || scope == "":
		return "", "", ErrIdempotencyKeyUnscoped
	case key == "":
		return "", "", ErrIdempotencyKeyRequired
	}
	return scope, key, nil
}
