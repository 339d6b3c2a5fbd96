package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/api/middleware"
	"github.com/example/ticket-shotgun/internal/command"
	"github.com/example/ticket-shotgun/internal/query"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	logger       *zap.Logger
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		logger:       logger.With(zap.String("component", "api")),
	}
}

// Sale Handlers

func (h *Handlers) GetSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.queryHandler.ListSales(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

func (h *Handlers) GetSale(w http.ResponseWriter, r *http.Request) {
	s, err := h.queryHandler.GetSale(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// StartOrder returns the caller's ongoing order in the sale, creating it if needed.
func (h *Handlers) StartOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.cmdHandler.CreateOrder(r.Context(), command.CreateOrder{
		SaleID: chi.URLParam(r, "saleID"),
		Actor:  actor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondOrder(w, r, http.StatusCreated, o.ID)
}

// Order Handlers

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListOrdersByUser(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) AddOrderLine(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID   string `json:"item_id"`
		Quantity int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	o, err := h.cmdHandler.AddOrderLine(r.Context(), command.AddOrderLine{
		OrderID:  chi.URLParam(r, "orderID"),
		ItemID:   req.ItemID,
		Quantity: req.Quantity,
		Actor:    actor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondOrder(w, r, http.StatusCreated, o.ID)
}

func (h *Handlers) RemoveOrderLine(w http.ResponseWriter, r *http.Request) {
	o, err := h.cmdHandler.RemoveOrderLine(r.Context(), command.RemoveOrderLine{
		OrderID: chi.URLParam(r, "orderID"),
		LineID:  chi.URLParam(r, "lineID"),
		Actor:   actor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondOrder(w, r, http.StatusOK, o.ID)
}

func (h *Handlers) ValidateOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.cmdHandler.ValidateOrder(r.Context(), command.ValidateOrder{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   actor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// SubmitOrder hands a valid order to payment. Rejections answer 422 with
// the violation list.
func (h *Handlers) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	result, err := h.cmdHandler.SubmitOrderForPayment(r.Context(), command.SubmitOrder{
		OrderID: chi.URLParam(r, "orderID"),
		Actor:   actor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	status := http.StatusOK
	if !result.IsValid {
		status = http.StatusUnprocessableEntity
	}
	respondJSON(w, status, result)
}

// OrderStatus is the polling endpoint. It completes payments the gateway
// already reports as paid.
func (h *Handlers) OrderStatus(w http.ResponseWriter, r *http.Request) {
	o, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}
	result, err := h.cmdHandler.OrderStatus(r.Context(), o.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSONError(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	orderID := chi.URLParam(r, "orderID")
	err := h.cmdHandler.CancelOrder(r.Context(), command.CancelOrder{
		OrderID: orderID,
		Reason:  req.Reason,
		Actor:   actor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.respondOrder(w, r, http.StatusOK, orderID)
}

func (h *Handlers) GetTickets(w http.ResponseWriter, r *http.Request) {
	o, ok := h.authorizedOrder(w, r)
	if !ok {
		return
	}
	tickets, err := h.queryHandler.ListTickets(r.Context(), o.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, tickets)
}

// UpdateTicketField sets one custom value of a ticket and answers with the
// updated ticket.
func (h *Handlers) UpdateTicketField(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	orderID := chi.URLParam(r, "orderID")
	ticket, err := h.cmdHandler.UpdateTicketField(r.Context(), command.UpdateTicketField{
		OrderID:  orderID,
		TicketID: chi.URLParam(r, "ticketID"),
		FieldID:  chi.URLParam(r, "fieldID"),
		Value:    req.Value,
		Actor:    actor(r),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	tickets, err := h.queryHandler.ListTickets(r.Context(), orderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	for _, t := range tickets {
		if t.ID == ticket.ID {
			respondJSON(w, http.StatusOK, t)
			return
		}
	}
	respondJSON(w, http.StatusOK, ticket)
}

// Admin Handlers

func (h *Handlers) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.queryHandler.ListOrdersByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, orders)
}

// Helper functions

// authorizedOrder loads the order named in the path and checks the caller
// owns it or is an admin. It writes the error response itself.
func (h *Handlers) authorizedOrder(w http.ResponseWriter, r *http.Request) (*query.OrderReadModel, bool) {
	o, err := h.queryHandler.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, h.logger, err)
		return nil, false
	}
	if a := actor(r); o.UserID != a.UserID && !a.Admin {
		writeError(w, h.logger, errForbidden)
		return nil, false
	}
	return o, true
}

func (h *Handlers) respondOrder(w http.ResponseWriter, r *http.Request, status int, orderID string) {
	o, err := h.queryHandler.GetOrder(r.Context(), orderID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	respondJSON(w, status, o)
}

func actor(r *http.Request) command.Actor {
	claims, ok := middleware.ClaimsFrom(r.Context())
	if !ok {
		return command.Actor{}
	}
	return command.Actor{UserID: claims.UserID, UserType: claims.UserType, Admin: claims.IsAdmin()}
}
