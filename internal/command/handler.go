package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
	"github.com/example/ticket-shotgun/internal/fulfillment"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/payment"
	"github.com/example/ticket-shotgun/internal/validation"
	"go.uber.org/zap"
)

var (
	ErrNotOwner      = errors.New("order belongs to another user")
	ErrItemNotInSale = errors.New("item is not sold in this sale")
)

// SubmitResult is the outcome of a payment submission. On rejection Status
// is the order's unchanged status and Errors lists the reasons.
type SubmitResult struct {
	Status  order.Status           `json:"status"`
	IsValid bool                   `json:"is_valid"`
	Errors  []validation.Violation `json:"errors"`
	Payment *payment.Transaction   `json:"payment,omitempty"`
}

type Config struct {
	// Attempts and Backoff bound retries on lock conflicts.
	Attempts int
	Backoff  time.Duration
}

type Handler struct {
	store       store.Store
	validator   *validation.Validator
	fulfillment *fulfillment.Service
	gateway     payment.Gateway
	events      store.EventSink
	cfg         Config
	logger      *zap.Logger
}

func NewHandler(
	st store.Store,
	validator *validation.Validator,
	fulfillmentSvc *fulfillment.Service,
	gateway payment.Gateway,
	events store.EventSink,
	cfg Config,
	logger *zap.Logger,
) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if events == nil {
		events = store.NopSink{}
	}
	return &Handler{
		store:       st,
		validator:   validator,
		fulfillment: fulfillmentSvc,
		gateway:     gateway,
		events:      events,
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "command")),
	}
}

func (h *Handler) retry(ctx context.Context, fn func() error) error {
	return store.Retry(ctx, h.cfg.Attempts, h.cfg.Backoff, fn)
}

func checkOwner(o *order.Order, a Actor) error {
	if o.OwnerID != a.UserID && !a.Admin {
		return ErrNotOwner
	}
	return nil
}

// CreateOrder starts shopping in a sale. A user keeps a single ongoing order
// per sale: if one exists and has not timed out it is returned as is.
func (h *Handler) CreateOrder(ctx context.Context, cmd CreateOrder) (*order.Order, error) {
	var result *order.Order
	// one key per user and sale so concurrent starts do not open two orders
	startKey := "start:" + cmd.SaleID + ":" + cmd.Actor.UserID
	err := h.retry(ctx, func() error {
		var seenID string
		err := h.store.View(ctx, func(tx store.Tx) error {
			o, err := tx.FindOrder(ctx, cmd.SaleID, cmd.Actor.UserID, order.StatusOngoing)
			switch {
			case err == nil:
				seenID = o.ID
			case !errors.Is(err, order.ErrOrderNotFound):
				return err
			}
			return nil
		})
		if err != nil {
			return err
		}
		scope := store.Scope{OrderIDs: []string{startKey}}
		if seenID != "" {
			scope.OrderIDs = append(scope.OrderIDs, seenID)
		}

		return h.store.WithScopeLock(ctx, scope, func(tx store.Tx) error {
			now := h.validator.Now()
			if _, err := tx.GetSale(ctx, cmd.SaleID); err != nil {
				return err
			}

			existing, err := tx.FindOrder(ctx, cmd.SaleID, cmd.Actor.UserID, order.StatusOngoing)
			switch {
			case err == nil:
				if existing.ID != seenID {
					return fmt.Errorf("%w: ongoing order of %s changed", store.ErrConcurrencyConflict, cmd.Actor.UserID)
				}
				if h.validator.Timeouts().EffectiveStatus(existing, now) != order.StatusExpired {
					result = existing
					return nil
				}
				// ongoing orders hold no stock, their own key is enough
				if err := existing.TransitionTo(order.StatusExpired, now); err != nil {
					return err
				}
				if err := tx.UpdateOrderStatus(ctx, existing.ID, existing.Status, existing.UpdatedAt); err != nil {
					return err
				}
			case !errors.Is(err, order.ErrOrderNotFound):
				return err
			}

			result = order.New(cmd.Actor.UserID, cmd.SaleID, now)
			return tx.SaveOrder(ctx, result)
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddOrderLine adds units of an item to an ongoing order.
func (h *Handler) AddOrderLine(ctx context.Context, cmd AddOrderLine) (*order.Order, error) {
	return h.editLines(ctx, cmd.OrderID, cmd.Actor, func(tx store.Tx, o *order.Order, now time.Time) error {
		item, err := tx.GetItem(ctx, cmd.ItemID)
		if err != nil {
			return err
		}
		if item.SaleID != o.SaleID {
			return fmt.Errorf("%w: item %s, sale %s", ErrItemNotInSale, item.ID, o.SaleID)
		}
		_, err = o.AddLine(item.ID, cmd.Quantity, now)
		return err
	})
}

// RemoveOrderLine drops a line from an ongoing order.
func (h *Handler) RemoveOrderLine(ctx context.Context, cmd RemoveOrderLine) (*order.Order, error) {
	return h.editLines(ctx, cmd.OrderID, cmd.Actor, func(_ store.Tx, o *order.Order, now time.Time) error {
		return o.RemoveLine(cmd.LineID, now)
	})
}

// editLines runs edit on an ongoing order under its own lock. Ongoing orders
// hold no stock, so the capped scopes are not needed.
func (h *Handler) editLines(ctx context.Context, orderID string, actor Actor, edit func(store.Tx, *order.Order, time.Time) error) (*order.Order, error) {
	var result *order.Order
	err := h.retry(ctx, func() error {
		return h.store.WithScopeLock(ctx, store.OrderScope(orderID), func(tx store.Tx) error {
			o, err := tx.GetOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if err := checkOwner(o, actor); err != nil {
				return err
			}
			now := h.validator.Now()
			if h.validator.Timeouts().EffectiveStatus(o, now) != order.StatusOngoing {
				return order.ErrOrderLocked
			}
			if err := edit(tx, o, now); err != nil {
				return err
			}
			result = o
			return tx.SaveOrder(ctx, o)
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ValidateOrder runs the validator against the current stock without
// changing anything.
func (h *Handler) ValidateOrder(ctx context.Context, cmd ValidateOrder) (validation.Result, error) {
	var result validation.Result
	err := h.retry(ctx, func() error {
		return validation.InOrderScope(ctx, h.store, cmd.OrderID, func(tx store.Tx, o *order.Order) error {
			if err := checkOwner(o, cmd.Actor); err != nil {
				return err
			}
			var err error
			result, err = h.validator.Validate(ctx, tx, o, validation.Options{UserType: cmd.Actor.UserType})
			return err
		})
	})
	return result, err
}

// SubmitOrderForPayment validates the order and, when it passes, moves it to
// awaiting_payment in the same unit of work and hands it to the payment
// gateway. A rejected order keeps its status; an order found timed out is
// marked expired.
func (h *Handler) SubmitOrderForPayment(ctx context.Context, cmd SubmitOrder) (SubmitResult, error) {
	var (
		result    SubmitResult
		submitted *order.Order
		amount    int
		expiredAt time.Time
		from      order.Status
	)
	err := h.retry(ctx, func() error {
		result, submitted, amount, from = SubmitResult{}, nil, 0, ""
		return validation.InOrderScope(ctx, h.store, cmd.OrderID, func(tx store.Tx, o *order.Order) error {
			if err := checkOwner(o, cmd.Actor); err != nil {
				return err
			}
			if len(o.Lines) == 0 {
				return order.ErrEmptyOrder
			}

			vr, err := h.validator.Validate(ctx, tx, o, validation.Options{UserType: cmd.Actor.UserType})
			if err != nil {
				return err
			}
			result.IsValid, result.Errors = vr.IsValid, vr.Errors

			now := h.validator.Now()
			if !vr.IsValid {
				if h.validator.Timeouts().EffectiveStatus(o, now) == order.StatusExpired && o.Status != order.StatusExpired {
					from = o.Status
					if err := o.TransitionTo(order.StatusExpired, now); err != nil {
						return err
					}
					if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
						return err
					}
					expiredAt = now
				}
				result.Status = o.Status
				return nil
			}

			if o.Status != order.StatusAwaitingPayment {
				if err := o.TransitionTo(order.StatusAwaitingPayment, now); err != nil {
					return err
				}
				if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
					return err
				}
			}
			if amount, err = orderAmount(ctx, tx, o); err != nil {
				return err
			}
			result.Status = o.Status
			submitted = o
			return nil
		})
	})
	if err != nil {
		return SubmitResult{}, err
	}

	if from != "" {
		h.publish(ctx, cmd.OrderID, order.EventOrderExpired, order.OrderExpired{
			OrderID:   cmd.OrderID,
			From:      from,
			ExpiredAt: expiredAt,
		})
	}
	if submitted == nil {
		h.logger.Info("order rejected",
			zap.String("order_id", cmd.OrderID),
			zap.Strings("errors", validation.Result{Errors: result.Errors}.Messages()),
		)
		return result, nil
	}

	tx, err := h.gateway.CreateTransaction(ctx, payment.Checkout{
		OrderID: submitted.ID,
		OwnerID: submitted.OwnerID,
		Amount:  amount,
	})
	if err != nil {
		// the order stays awaiting_payment; submitting again reuses it
		return result, fmt.Errorf("failed to create payment transaction: %w", err)
	}
	result.Payment = &tx

	h.publish(ctx, submitted.ID, order.EventOrderSubmitted, order.OrderSubmitted{
		OrderID:     submitted.ID,
		OwnerID:     submitted.OwnerID,
		SaleID:      submitted.SaleID,
		Quantity:    submitted.TotalQuantity(),
		SubmittedAt: submitted.UpdatedAt,
	})
	return result, nil
}

func orderAmount(ctx context.Context, tx store.Tx, o *order.Order) (int, error) {
	var amount int
	for _, l := range o.Lines {
		item, err := tx.GetItem(ctx, l.ItemID)
		if err != nil {
			return 0, err
		}
		amount += item.Price * l.Quantity
	}
	return amount, nil
}

// ConfirmPayment is called by the payment callback, possibly several times.
func (h *Handler) ConfirmPayment(ctx context.Context, orderID string) (fulfillment.Result, error) {
	return h.fulfillment.ConfirmPayment(ctx, orderID)
}

// OrderStatus answers client polling. When the gateway reports the order
// paid before its callback arrived, the order is fulfilled here, with the
// same idempotent outcome as the callback.
func (h *Handler) OrderStatus(ctx context.Context, orderID string) (fulfillment.Result, error) {
	res, err := h.fulfillment.Status(ctx, orderID)
	if err != nil {
		return fulfillment.Result{}, err
	}
	switch {
	case res.Status == order.StatusPaid && !res.TicketsGenerated:
		return h.fulfillment.ConfirmPayment(ctx, orderID)
	case res.Status == order.StatusAwaitingPayment:
		paid, err := h.gateway.IsPaid(ctx, orderID)
		if err != nil {
			return fulfillment.Result{}, fmt.Errorf("failed to query payment gateway: %w", err)
		}
		if paid {
			return h.fulfillment.ConfirmPayment(ctx, orderID)
		}
	}
	return res, nil
}

// CancelOrder voids an order on behalf of its owner or an admin.
func (h *Handler) CancelOrder(ctx context.Context, cmd CancelOrder) error {
	var cancelled *order.Order
	err := h.retry(ctx, func() error {
		cancelled = nil
		return validation.InOrderScope(ctx, h.store, cmd.OrderID, func(tx store.Tx, o *order.Order) error {
			if err := checkOwner(o, cmd.Actor); err != nil {
				return err
			}
			if err := o.TransitionTo(order.StatusCancelled, h.validator.Now()); err != nil {
				return err
			}
			cancelled = o
			return tx.UpdateOrderStatus(ctx, o.ID, o.Status, o.UpdatedAt)
		})
	})
	if err != nil {
		return err
	}

	h.publish(ctx, cancelled.ID, order.EventOrderCancelled, order.OrderCancelled{
		OrderID:     cancelled.ID,
		Reason:      cmd.Reason,
		CancelledAt: cancelled.UpdatedAt,
	})
	return nil
}

// UpdateTicketField sets a custom value on one ticket of a paid order. Buyers
// may only change editable fields; admins may change any field.
func (h *Handler) UpdateTicketField(ctx context.Context, cmd UpdateTicketField) (*order.OrderLineItem, error) {
	var updated *order.OrderLineItem
	err := h.retry(ctx, func() error {
		updated = nil
		return h.store.WithScopeLock(ctx, store.OrderScope(cmd.OrderID), func(tx store.Tx) error {
			o, err := tx.GetOrder(ctx, cmd.OrderID)
			if err != nil {
				return err
			}
			if err := checkOwner(o, cmd.Actor); err != nil {
				return err
			}
			tickets, err := tx.ListTickets(ctx, o.ID)
			if err != nil {
				return err
			}
			var ticket *order.OrderLineItem
			for i := range tickets {
				if tickets[i].ID == cmd.TicketID {
					ticket = &tickets[i]
					break
				}
			}
			if ticket == nil {
				return fmt.Errorf("%w: %s in order %s", order.ErrTicketNotFound, cmd.TicketID, o.ID)
			}

			line, err := o.Line(ticket.OrderLineID)
			if err != nil {
				return err
			}
			item, err := tx.GetItem(ctx, line.ItemID)
			if err != nil {
				return err
			}
			field, err := item.Field(cmd.FieldID)
			if err != nil {
				return err
			}
			if !field.Editable && !cmd.Actor.Admin {
				return fmt.Errorf("%w: %s", sale.ErrFieldNotEditable, field.ID)
			}
			if err := field.Check(cmd.Value); err != nil {
				return err
			}
			if err := tx.SetTicketField(ctx, ticket.ID, field.ID, cmd.Value); err != nil {
				return err
			}

			if ticket.Fields == nil {
				ticket.Fields = make(map[string]string)
			}
			if cmd.Value == "" {
				delete(ticket.Fields, field.ID)
			} else {
				ticket.Fields[field.ID] = cmd.Value
			}
			updated = ticket
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	h.logger.Info("ticket field updated",
		zap.String("order_id", cmd.OrderID),
		zap.String("ticket_id", cmd.TicketID),
		zap.String("field_id", cmd.FieldID),
	)
	return updated, nil
}

// publish emits an event after its unit of work committed. Failures are
// logged and otherwise ignored.
func (h *Handler) publish(ctx context.Context, orderID, eventType string, data any) {
	event, err := store.NewEvent(orderID, order.AggregateType, eventType, data)
	if err == nil {
		err = h.events.Emit(ctx, event)
	}
	if err != nil {
		h.logger.Error("failed to publish event",
			zap.String("order_id", orderID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

// IsNotFound reports whether err means a referenced record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, order.ErrOrderNotFound) ||
		errors.Is(err, order.ErrLineNotFound) ||
		errors.Is(err, order.ErrTicketNotFound) ||
		errors.Is(err, sale.ErrFieldNotFound) ||
		errors.Is(err, sale.ErrSaleNotFound) ||
		errors.Is(err, sale.ErrItemNotFound) ||
		errors.Is(err, sale.ErrGroupNotFound)
}
