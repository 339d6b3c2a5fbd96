// Package validation decides whether an order may go to payment given the
// stock its siblings already hold.
package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/quantity"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Options tune a single validation.
type Options struct {
	// UserType of the buyer, checked against item restrictions.
	UserType string
	// FailFast stops at the first violation and reports it as a
	// *ValidationError.
	FailFast bool
}

type Validator struct {
	timeouts order.Timeouts
	now      func() time.Time
	logger   *zap.Logger
	metrics  metrics
}

type Option func(*Validator)

func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

func WithLogger(logger *zap.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithMeter injects the meter validations are counted on.
func WithMeter(m metric.Meter) Option {
	return func(v *Validator) { v.metrics = newMetrics(m, v.logger) }
}

func NewValidator(timeouts order.Timeouts, opts ...Option) *Validator {
	v := &Validator{
		timeouts: timeouts,
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = zap.NewNop()
	}
	if !v.metrics.enabled {
		v.metrics = newMetrics(nil, v.logger)
	}
	return v
}

// Timeouts returns the timers the validator applies to orders.
func (v *Validator) Timeouts() order.Timeouts {
	return v.timeouts
}

// Now returns the validator's current time.
func (v *Validator) Now() time.Time {
	return v.now()
}

// collector gathers violations and tells the caller when to stop.
type collector struct {
	failFast   bool
	violations []Violation
}

func (c *collector) add(code Code, format string, args ...any) bool {
	c.violations = append(c.violations, Violation{Code: code, Message: fmt.Sprintf(format, args...)})
	return c.failFast
}

func (c *collector) result() (Result, error) {
	r := Result{IsValid: len(c.violations) == 0, Errors: c.violations}
	if r.Errors == nil {
		r.Errors = []Violation{}
	}
	if c.failFast && !r.IsValid {
		return r, &ValidationError{Violation: r.Errors[0]}
	}
	return r, nil
}

// Validate checks o against the current state read through tx. Business rule
// failures are reported in the Result; the error is only set for store
// failures, or for the first violation when opts.FailFast is set.
//
// Capacity figures are only consistent when tx holds the locks returned by
// LockScope for o.
func (v *Validator) Validate(ctx context.Context, tx store.Tx, o *order.Order, opts Options) (Result, error) {
	r, err := v.validate(ctx, tx, o, opts)
	if err == nil || r.Errors != nil {
		v.metrics.record(ctx, r)
	}
	if !r.IsValid && r.Errors != nil {
		v.logger.Debug("order rejected",
			zap.String("order_id", o.ID),
			zap.Any("codes", r.Codes()),
		)
	}
	return r, err
}

func (v *Validator) validate(ctx context.Context, tx store.Tx, o *order.Order, opts Options) (Result, error) {
	now := v.now()
	c := &collector{failFast: opts.FailFast}

	s, err := tx.GetSale(ctx, o.SaleID)
	if err != nil {
		return Result{}, err
	}

	if !s.IsActive {
		if c.add(CodeSaleInactive, "sale %s is not active", s.ID) {
			return c.result()
		}
	}
	if !s.IsOngoing(now) {
		if c.add(CodeSaleNotOngoing, "sale %s only accepts payments between %s and %s",
			s.ID, s.BeginAt.Format(time.RFC3339), s.MaxPaymentDate.Format(time.RFC3339)) {
			return c.result()
		}
	}
	if status := v.timeouts.EffectiveStatus(o, now); !status.IsPayable() {
		if c.add(CodeOrderNotPayable, "order %s cannot be paid in status %s", o.ID, status) {
			return c.result()
		}
	}

	tally, err := quantity.Load(ctx, tx, o.SaleID, o.ID, now, v.timeouts)
	if err != nil {
		return Result{}, err
	}

	if s.MaxItemQuantity != nil {
		committed, own := tally.Committed(quantity.SaleScope()), o.TotalQuantity()
		if committed+own > *s.MaxItemQuantity {
			if c.add(CodeSaleQuantityExceeded, "sale %s has %d items left, %d requested",
				s.ID, remaining(*s.MaxItemQuantity, committed), own) {
				return c.result()
			}
		}
	}

	items := make(map[string]*sale.Item, len(o.Lines))
	for _, l := range o.Lines {
		item, err := tx.GetItem(ctx, l.ItemID)
		if err != nil {
			return Result{}, fmt.Errorf("order %s line %s: %w", o.ID, l.ID, err)
		}
		items[l.ItemID] = item
	}

	seenGroups := make(map[string]bool)
	for _, l := range o.Lines {
		item := items[l.ItemID]
		if v.checkItem(c, tally, o, item, l.Quantity, opts.UserType) {
			return c.result()
		}

		groupID := item.Group()
		if groupID == "" || seenGroups[groupID] {
			continue
		}
		seenGroups[groupID] = true
		group, err := tx.GetGroup(ctx, groupID)
		if err != nil {
			return Result{}, fmt.Errorf("item %s: %w", item.ID, err)
		}
		if v.checkGroup(c, tally, o, group, groupQuantity(o, items, groupID)) {
			return c.result()
		}
	}

	return c.result()
}

// checkItem reports whether validation must stop.
func (v *Validator) checkItem(c *collector, tally *quantity.Tally, o *order.Order, item *sale.Item, own int, userType string) bool {
	if !item.IsActive {
		if c.add(CodeItemInactive, "item %s is not available", item.Name) {
			return true
		}
	}
	if !item.AllowsUserType(userType) {
		if c.add(CodeItemUserTypeNotAllowed, "item %s is not sold to %q users", item.Name, userType) {
			return true
		}
	}
	scope := quantity.ItemScope(item.ID)
	if item.Quantity != nil {
		committed := tally.Committed(scope)
		if committed+own > *item.Quantity {
			if c.add(CodeItemQuantityExceeded, "item %s has %d left, %d requested",
				item.Name, remaining(*item.Quantity, committed), own) {
				return true
			}
		}
	}
	if item.MaxPerUser != nil {
		owned := tally.OwnedBy(scope, o.OwnerID)
		if owned+own > *item.MaxPerUser {
			if c.add(CodeItemMaxPerUserExceeded, "item %s is limited to %d per user, %d already bought, %d requested",
				item.Name, *item.MaxPerUser, owned, own) {
				return true
			}
		}
	}
	return false
}

func (v *Validator) checkGroup(c *collector, tally *quantity.Tally, o *order.Order, group *sale.ItemGroup, own int) bool {
	scope := quantity.GroupScope(group.ID)
	if group.Quantity != nil {
		committed := tally.Committed(scope)
		if committed+own > *group.Quantity {
			if c.add(CodeGroupQuantityExceeded, "group %s has %d left, %d requested",
				group.Name, remaining(*group.Quantity, committed), own) {
				return true
			}
		}
	}
	if group.MaxPerUser != nil {
		owned := tally.OwnedBy(scope, o.OwnerID)
		if owned+own > *group.MaxPerUser {
			if c.add(CodeGroupMaxPerUserExceeded, "group %s is limited to %d per user, %d already bought, %d requested",
				group.Name, *group.MaxPerUser, owned, own) {
				return true
			}
		}
	}
	return false
}

func groupQuantity(o *order.Order, items map[string]*sale.Item, groupID string) int {
	var total int
	for _, l := range o.Lines {
		if items[l.ItemID].Group() == groupID {
			total += l.Quantity
		}
	}
	return total
}

func remaining(capacity, committed int) int {
	return max(capacity-committed, 0)
}
