package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/command"
	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/payment"
	"github.com/example/ticket-shotgun/internal/profile"
	"github.com/example/ticket-shotgun/internal/validation"
)

var errForbidden = errors.New("forbidden")

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case command.IsNotFound(err),
		errors.Is(err, payment.ErrTransactionNotFound),
		errors.Is(err, profile.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, command.ErrNotOwner), errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrOrderLocked),
		errors.Is(err, sale.ErrFieldNotEditable):
		return http.StatusConflict
	case errors.Is(err, store.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable
	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, command.ErrItemNotInSale),
		errors.Is(err, sale.ErrInvalidFieldValue):
		return http.StatusBadRequest
	case errors.Is(err, validation.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	switch status {
	case http.StatusInternalServerError:
		logger.Error("request failed", zap.Error(err))
		respondJSONError(w, "internal error", status)
		return
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	respondJSONError(w, err.Error(), status)
}
