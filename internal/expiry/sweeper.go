// Package expiry persists the expiry of orders whose timers ran out.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const metricNamespace = "github.com/example/ticket-shotgun/internal/expiry"

// waiting lists the statuses that carry a timer.
var waiting = []order.Status{order.StatusOngoing, order.StatusAwaitingValidation, order.StatusAwaitingPayment}

type Config struct {
	Timeouts order.Timeouts
	Attempts int
	Backoff  time.Duration
}

type Sweeper struct {
	store  store.Store
	events store.EventSink
	cfg    Config
	now    func() time.Time
	logger *zap.Logger

	expired metric.Int64Counter
}

type Option func(*Sweeper)

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func NewSweeper(st store.Store, events store.EventSink, cfg Config, opts ...Option) *Sweeper {
	s := &Sweeper{
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
	s.logger = s.logger.With(zap.String("component", "expiry"))

	var err error
	s.expired, err = otel.GetMeterProvider().Meter(metricNamespace).Int64Counter(
		"expiry.orders_expired",
		metric.WithDescription("Count of orders marked expired by the sweeper"),
	)
	if err != nil {
		s.logger.Warn("unable to register expiry metric", zap.Error(err))
	}
	return s
}

// Sweep marks expired every timed out order of the active sales and returns
// how many it changed. Each order is flipped under the same locks validation
// takes, after checking again that it is still timed out.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	candidates, err := s.candidates(ctx)
	if err != nil {
		return 0, err
	}

	var (
		count int
		errs  []error
	)
	for _, id := range candidates {
		changed, err := s.expire(ctx, id)
		if err != nil {
			s.logger.Error("failed to expire order", zap.String("order_id", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("order %s: %w", id, err))
			continue
		}
		if changed {
			count++
		}
	}
	if count > 0 {
		s.logger.Info("orders expired", zap.Int("count", count))
	}
	return count, errors.Join(errs...)
}

func (s *Sweeper) candidates(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.store.View(ctx, func(tx store.Tx) error {
		sales, err := tx.ListActiveSales(ctx)
		if err != nil {
			return err
		}
		now := s.now()
		for _, sl := range sales {
			orders, err := tx.ListOrdersByStatus(ctx, sl.ID, waiting)
			if err != nil {
				return err
			}
			for _, o := range orders {
				if s.cfg.Timeouts.IsLogicallyExpired(o.Status, o.UpdatedAt, now) {
					ids = append(ids, o.ID)
				}
			}
		}
		return nil
	})
	return ids, err
}

func (s *Sweeper) expire(ctx context.Context, orderID string) (bool, error) {
	var (
		from order.Status
		at   time.Time
	)
	err := store.Retry(ctx, s.cfg.Attempts, s.cfg.Backoff, func() error {
		from = ""
		return validation.InOrderScope(ctx, s.store, orderID, func(tx store.Tx, o *order.Order) error {
			now := s.now()
			// paid or resubmitted since the candidate scan
			if !s.cfg.Timeouts.IsLogicallyExpired(o.Status, o.UpdatedAt, now) {
				return nil
			}
			prev := o.Status
			if err := o.TransitionTo(order.StatusExpired, now); err != nil {
				return err
			}
			if err := tx.UpdateOrderStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
				return err
			}
			from, at = prev, now
			return nil
		})
	})
	if err != nil || from == "" {
		return false, err
	}

	if s.expired != nil {
		s.expired.Add(ctx, 1)
	}
	event, err := store.NewEvent(orderID, order.AggregateType, order.EventOrderExpired, order.OrderExpired{
		OrderID:   orderID,
		From:      from,
		ExpiredAt: at,
	})
	if err == nil {
		err = s.events.Emit(ctx, event)
	}
	if err != nil {
		s.logger.Error("failed to publish OrderExpired", zap.String("order_id", orderID), zap.Error(err))
	}
	return true, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("sweep finished with errors", zap.Error(err))
			}
		}
	}
}
