package handler

import (
	"errors"
	"net/http"

	"github.com/rl1809/inventory-control/internal/core/domain"
)

// Error codes shared by the HTTP and gRPC transports.
const (
	CodeInvalidArgument    = "invalid_argument"
	CodeNotFound           = "not_found"
	CodeAlreadyExists      = "already_exists"
	CodeInsufficientStock  = "insufficient_stock"
	CodeStockOverflow      = "stock_overflow"
	CodeConcurrentModified = "concurrent_modification"
	CodeLockNotAcquired    = "lock_not_acquired"
	CodeDuplicateRequest   = "duplicate_request"
	CodeInternal           = "internal"
)

func classify(err error) (code string, status int) {
	switch {
	case domain.IsValidation(err):
		return CodeInvalidArgument, http.StatusBadRequest
	case errors.Is(err, domain.ErrStockNotFound):
		return CodeNotFound, http.StatusNotFound
	case errors.Is(err, domain.ErrStockAlreadyExists):
		return CodeAlreadyExists, http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientStock):
		return CodeInsufficientStock, http.StatusConflict
	case errors.Is(err, domain.ErrStockOverflow):
		return CodeStockOverflow, http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConcurrentModification):
		return CodeConcurrentModified, http.StatusConflict
	case errors.Is(err, domain.ErrLockNotAcquired):
		return CodeLockNotAcquired, http.StatusLocked
	case errors.Is(err, domain.ErrDuplicateRequest):
		return CodeDuplicateRequest, http.StatusConflict
	default:
		return CodeInternal, http.StatusInternalServerError
	}
}

// publicMessage hides infrastructure details behind a generic message.
func publicMessage(code string, err error) string {
	if code == CodeInternal {
		return "internal error"
	}
	return err.Error()
}
