package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/command"
	"github.com/example/ticket-shotgun/internal/payment"
)

const maxCallbackBody = 64 << 10

// PaymentHandlers receives payment gateway callbacks.
type PaymentHandlers struct {
	cmdHandler *command.Handler
	parser     payment.CallbackParser
	logger     *zap.Logger
}

func NewPaymentHandlers(cmdHandler *command.Handler, parser payment.CallbackParser, logger *zap.Logger) *PaymentHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandlers{
		cmdHandler: cmdHandler,
		parser:     parser,
		logger:     logger.With(zap.String("component", "api.payment")),
	}
}

// Callback confirms the payment of the order the callback names and answers
// {status, updated, tickets_generated}. Callbacks that report no payment are
// acknowledged with 202.
func (h *PaymentHandlers) Callback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	n, err := h.parser.ParseCallback(r.Context(), chi.URLParam(r, "transactionID"), r.Header, body)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if n.OrderID == "" || !n.Paid {
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
		return
	}

	result, err := h.cmdHandler.ConfirmPayment(r.Context(), n.OrderID)
	if err != nil {
		h.logger.Warn("payment confirmation failed",
			zap.String("order_id", n.OrderID),
			zap.String("transaction_id", n.TransactionID),
			zap.Error(err),
		)
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
