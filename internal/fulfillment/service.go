// Package fulfillment turns a confirmed payment into a paid order and its
// tickets, exactly once per order.
package fulfillment

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "github.com/example/ticket-shotgun/internal/fulfillment"

// Result mirrors what the payment callback and status polling answer.
type Result struct {
	Status           order.Status `json:"status"`
	Updated          bool         `json:"updated"`
	TicketsGenerated bool         `json:"tickets_generated"`
}

type Config struct {
	Timeouts order.Timeouts
	// Attempts and Backoff bound retries on lock conflicts.
	Attempts int
	Backoff  time.Duration
}

type Service struct {
	store  store.Store
	events store.EventSink
	cfg    Config
	now    func() time.Time
	logger *zap.Logger

	confirmations metric.Int64Counter
	tickets       metric.Int64Counter
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(st store.Store, events store.EventSink, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:  st,
		events: events,
		cfg:    cfg,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.events == nil {
		s.events = store.NopSink{}
	}
	s.logger = s.logger.With(zap.String("component", "fulfillment"))

	meter := otel.GetMeterProvider().Meter(metricNamespace)
	var err error
	if s.confirmations, err = meter.Int64Counter(
		"fulfillment.confirmations",
		metric.WithDescription("Count of payment confirmations by outcome"),
	); err != nil {
		s.logger.Warn("unable to register confirmations metric", zap.Error(err))
	}
	if s.tickets, err = meter.Int64Counter(
		"fulfillment.tickets",
		metric.WithDescription("Count of tickets generated"),
	); err != nil {
		s.logger.Warn("unable to register tickets metric", zap.Error(err))
	}
	return s
}

// ConfirmPayment marks the order paid and creates one ticket per unit. Only
// the call that does the work reports Updated; repeated or concurrent calls
// for the same order observe the finished result and write nothing.
//
// The move to paid holds the order's full lock scope, the same one
// validation and the sweeper take, so a submission never reads the order as
// expired while it is being paid.
func (s *Service) ConfirmPayment(ctx context.Context, orderID string) (Result, error) {
	var (
		res     Result
		paid    *order.Order
		tickets []order.OrderLineItem
	)
	err := store.Retry(ctx, s.cfg.Attempts, s.cfg.Backoff, func() error {
		res, paid, tickets = Result{}, nil, nil
		return validation.InOrderScope(ctx, s.store, orderID, func(tx store.Tx, o *order.Order) error {
			now := s.now()
			existing, err := tx.ListTickets(ctx, orderID)
			if err != nil {
				return err
			}

			if o.Status == order.StatusPaid {
				res = Result{Status: order.StatusPaid}
				if len(existing) > 0 {
					return nil
				}
				// paid without tickets: finish the interrupted fulfillment
				if tickets, err = newTickets(ctx, tx, o, now); err != nil {
					return err
				}
				res.TicketsGenerated = true
				paid = o
				return tx.InsertTickets(ctx, tickets)
			}

			if s.cfg.Timeouts.EffectiveStatus(o, now) == order.StatusExpired {
				return fmt.Errorf("%w: order %s expired while %s", order.ErrInvalidTransition, o.ID, o.Status)
			}
			if err := o.TransitionTo(order.StatusPaid, now); err != nil {
				return err
			}
			if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
				return err
			}
			if tickets, err = newTickets(ctx, tx, o, now); err != nil {
				return err
			}
			if err := tx.InsertTickets(ctx, tickets); err != nil {
				return err
			}
			res = Result{Status: order.StatusPaid, Updated: true, TicketsGenerated: true}
			paid = o
			return nil
		})
	})
	if err != nil {
		s.count(ctx, "error")
		return Result{}, err
	}

	if paid == nil {
		s.count(ctx, "noop")
		return res, nil
	}
	s.count(ctx, "fulfilled")
	if s.tickets != nil {
		s.tickets.Add(ctx, int64(len(tickets)))
	}
	s.logger.Info("order fulfilled",
		zap.String("order_id", paid.ID),
		zap.Int("tickets", len(tickets)),
		zap.Bool("status_updated", res.Updated),
	)
	s.publishPaid(ctx, paid, tickets)
	return res, nil
}

// newTickets builds the order's tickets with the default values of their
// item's fields.
func newTickets(ctx context.Context, tx store.Tx, o *order.Order, now time.Time) ([]order.OrderLineItem, error) {
	tickets := o.NewTickets(now)
	defaults := make(map[string]map[string]string, len(o.Lines))
	for _, l := range o.Lines {
		item, err := tx.GetItem(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}
		defaults[l.ID] = item.DefaultFields()
	}
	for i := range tickets {
		tickets[i].Fields = maps.Clone(defaults[tickets[i].OrderLineID])
	}
	return tickets, nil
}

// Status reads the order the way ConfirmPayment would report it, without
// writing. Updated is always false.
func (s *Service) Status(ctx context.Context, orderID string) (Result, error) {
	var res Result
	err := s.store.View(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		tickets, err := tx.ListTickets(ctx, orderID)
		if err != nil {
			return err
		}
		res = Result{
			Status:           s.cfg.Timeouts.EffectiveStatus(o, s.now()),
			TicketsGenerated: len(tickets) > 0,
		}
		return nil
	})
	return res, err
}

func (s *Service) publishPaid(ctx context.Context, o *order.Order, tickets []order.OrderLineItem) {
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	event, err := store.NewEvent(o.ID, order.AggregateType, order.EventOrderPaid, order.OrderPaid{
		OrderID:   o.ID,
		OwnerID:   o.OwnerID,
		SaleID:    o.SaleID,
		TicketIDs: ids,
		PaidAt:    o.UpdatedAt,
	})
	if err == nil {
		err = s.events.Emit(ctx, event)
	}
	if err != nil {
		s.logger.Error("failed to publish OrderPaid", zap.String("order_id", o.ID), zap.Error(err))
	}
}

func (s *Service) count(ctx context.Context, outcome string) {
	if s.confirmations != nil {
		s.confirmations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}
