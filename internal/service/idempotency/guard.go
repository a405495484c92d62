package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

const (
	// заголовок, в котором клиент передаёт ключ идемпотентности.
	HeaderKey = "Idempotency-Key"

	defaultTTL   = 24 * time.Hour
	maxKeyLength = 128
)

// ErrKeyInFlight — запрос с тем же ключом ещё обрабатывается.
var ErrKeyInFlight = fmt.Errorf("request with the same idempotency key is already processing: %w", domain.ErrConflict)

// Response — сохраняемый ответ на запрос.
type Response struct {
	Status int
	Body   []byte
}

// Guard выполняет обработчик не более одного раза на ключ и повторяет
// сохранённый ответ для повторных запросов с тем же телом.
type Guard struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
}

// NewGuard создаёт Guard. ttl <= 0 заменяется на 24 часа.
func NewGuard(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Guard {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = log.WithField("component", "idempotency-guard")
	}
	return &Guard{repo: repo, ttl: ttl, logger: logger}
}

// Do выполняет handler под ключом scope:key. Возвращает ответ и признак того,
// что он взят из сохранённой записи.
//
// Ошибки: ключ использован с другим телом (ErrIdempotencyHashMismatch),
// предыдущий запрос ещё выполняется (ErrKeyInFlight), некорректный ключ
// (ErrInvalidRequest).
func (g *Guard) Do(
	ctx context.Context,
	scope, key, method string,
	body []byte,
	handler func(ctx context.Context) Response,
) (Response, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Response{}, false, domain.ErrIdempotencyKeyRequired
	}
	if len(key) > maxKeyLength {
		return Response{}, false, domain.InvalidRequestf("idempotency key must not exceed %d characters", maxKeyLength)
	}

	storageKey := domain.ScopedIdempotencyKey(scope, key)
	record, err := g.repo.CreateProcessing(ctx, storageKey, RequestHash(method, body), time.Now().UTC().Add(g.ttl))
	if err != nil {
		return g.replay(err, record)
	}

	resp := handler(ctx)
	if resp.Status >= http.StatusInternalServerError {
		err = g.repo.MarkFailed(ctx, storageKey, resp.Body, resp.Status)
	} else {
		err = g.repo.MarkDone(ctx, storageKey, resp.Body, resp.Status)
	}
	if err != nil {
		g.logger.WithError(err).WithField("idempotency_key", storageKey).Warn("failed to store idempotent response")
	}
	return resp, false, nil
}

func (g *Guard) replay(createErr error, record domain.IdempotencyRecord) (Response, bool, error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		return Response{}, false, createErr
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		switch record.Status {
		case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
			status := record.HTTPStatus
			if status == 0 {
				status = http.StatusOK
			}
			return Response{Status: status, Body: record.ResponseBody}, true, nil
		case domain.IdempotencyStatusProcessing:
			return Response{}, false, ErrKeyInFlight
		default:
			return Response{}, false, fmt.Errorf("unknown idempotency record status %q", record.Status)
		}
	default:
		return Response{}, false, fmt.Errorf("create idempotency record: %w", createErr)
	}
}

// RequestHash считает sha256 от метода и тела запроса.
func RequestHash(method string, body []byte) string {
	payload := make([]byte, 0, len(method)+1+len(body))
	payload = append(payload, method...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
