package httpsvc

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bakery/internal/domain"
)

// Коды ошибок в теле ответа.
const (
	kindNotFound          = "NOT_FOUND"
	kindInvalidRequest    = "INVALID_REQUEST"
	kindInsufficientStock = "INSUFFICIENT_STOCK"
	kindConflict          = "CONFLICT"
	kindUnauthorized      = "UNAUTHORIZED"
	kindForbidden         = "FORBIDDEN"
	kindIdempotencyReuse  = "IDEMPOTENCY_KEY_REUSED"
	kindRateLimited       = "RATE_LIMITED"
	kindInternal          = "INTERNAL"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	ProductID   string `json:"productId,omitempty"`
	ProductName string `json:"productName,omitempty"`
	Requested   *int   `json:"requested,omitempty"`
	Available   *int   `json:"available,omitempty"`
	Shortfall   *int   `json:"shortfall,omitempty"`
}

// errorStatus классифицирует ошибку по виду.
func errorStatus(err error) (int, errorResponse) {
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		shortfall := stockErr.Shortfall()
		return http.StatusConflict, errorResponse{
			Error:       kindInsufficientStock,
			Message:     err.Error(),
			ProductID:   stockErr.ProductID,
			ProductName: stockErr.ProductName,
			Requested:   &stockErr.Requested,
			Available:   &stockErr.Available,
			Shortfall:   &shortfall,
		}
	}

	switch {
	case errors.Is(err, domain.ErrIdempotencyHashMismatch):
		return http.StatusUnprocessableEntity, errorResponse{Error: kindIdempotencyReuse, Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, errorResponse{Error: kindNotFound, Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, errorResponse{Error: kindInvalidRequest, Message: err.Error()}
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, errorResponse{Error: kindConflict, Message: err.Error()}
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{Error: kindUnauthorized, Message: err.Error()}
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, errorResponse{Error: kindForbidden, Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorResponse{Error: kindInternal, Message: "internal server error"}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError пишет ответ об ошибке. Неклассифицированные ошибки логируются, клиент видит общий текст.
func writeError(w http.ResponseWriter, r *http.Request, logger *log.Entry, err error) {
	status, body := errorStatus(err)
	if status == http.StatusInternalServerError {
		requestLogger(r, logger).WithError(err).Error("request failed")
	}
	writeJSON(w, status, body)
}

func badRequest(message string) error {
	return domain.InvalidRequestf("%s", message)
}
