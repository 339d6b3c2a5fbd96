package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/email"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/profile"
	"github.com/example/ticket-shotgun/internal/query"
)

// Mailer delivers ticket emails.
type Mailer interface {
	SendTickets(ctx context.Context, to string, mail email.TicketMail) error
}

// Handler mails tickets to buyers once their order is paid. Delivery is at
// least once: a redelivered OrderPaid event sends the mail again.
type Handler struct {
	mailer   Mailer
	profiles *profile.Service
	queries  *query.Handler
	logger   *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, profiles *profile.Service, queries *query.Handler, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		mailer:   mailer,
		profiles: profiles,
		queries:  queries,
		logger:   logger.With(zap.String("component", "notifier")),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, _, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Warn("failed to unmarshal event", zap.Error(err))
		return err
	}
	return h.Handle(ctx, event)
}

// Handle processes a decoded event. Events other than OrderPaid are ignored.
func (h *Handler) Handle(ctx context.Context, event store.Event) error {
	if event.EventType != order.EventOrderPaid {
		return nil
	}

	var e order.OrderPaid
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Warn("failed to unmarshal OrderPaid event", zap.String("event_id", event.ID), zap.Error(err))
		return err
	}
	return h.handleOrderPaid(ctx, e)
}

func (h *Handler) handleOrderPaid(ctx context.Context, e order.OrderPaid) error {
	logger := h.logger.With(zap.String("order_id", e.OrderID), zap.String("owner_id", e.OwnerID))

	buyer, err := h.profiles.Get(ctx, e.OwnerID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		logger.Warn("no profile for buyer, tickets not mailed")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profile %s: %w", e.OwnerID, err)
	}
	to := buyer.Email()
	if to == "" {
		logger.Warn("buyer has no email address, tickets not mailed")
		return nil
	}

	tickets, err := h.queries.ListTickets(ctx, e.OrderID)
	if err != nil {
		return fmt.Errorf("list tickets of %s: %w", e.OrderID, err)
	}
	if len(tickets) == 0 {
		logger.Warn("paid order has no tickets")
		return nil
	}

	saleName := e.SaleID
	if s, err := h.queries.GetSale(ctx, e.SaleID); err == nil {
		saleName = s.Name
	} else {
		logger.Warn("sale lookup failed, mailing with sale id", zap.Error(err))
	}

	mail := email.TicketMail{
		OrderID:   e.OrderID,
		BuyerName: buyer.DisplayName(),
		SaleName:  saleName,
		Tickets:   make([]email.Ticket, 0, len(tickets)),
	}
	for _, t := range tickets {
		mail.Tickets = append(mail.Tickets, email.Ticket{ID: t.ID, ItemName: t.ItemName})
	}

	if err := h.mailer.SendTickets(ctx, to, mail); err != nil {
		logger.Error("failed to send tickets", zap.Error(err))
		return err
	}
	logger.Info("tickets sent", zap.Int("count", len(mail.Tickets)))
	return nil
}
