package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
)

// LockScope returns the keys a unit of work must hold to validate or move o
// without racing other orders: the order itself, plus the sale, groups and
// items of o that carry a cap. Uncapped levels are left out so orders on
// unrelated stock never wait on each other.
func LockScope(ctx context.Context, tx store.Tx, o *order.Order) (store.Scope, error) {
	scope := store.OrderScope(o.ID)

	s, err := tx.GetSale(ctx, o.SaleID)
	if err != nil {
		return store.Scope{}, err
	}
	if s.MaxItemQuantity != nil {
		scope.SaleID = s.ID
	}

	for _, itemID := range o.ItemIDs() {
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return store.Scope{}, err
		}
		if item.HasCaps() {
			scope.ItemIDs = append(scope.ItemIDs, item.ID)
		}
		if groupID := item.Group(); groupID != "" {
			group, err := tx.GetGroup(ctx, groupID)
			if err != nil {
				return store.Scope{}, err
			}
			if group.HasCaps() {
				scope.GroupIDs = append(scope.GroupIDs, group.ID)
			}
		}
	}
	return scope, nil
}

// InOrderScope runs fn on a fresh copy of the order while holding its lock
// scope. The scope is derived before locking and checked again once the locks
// are held; if the order or its stock changed in between, the unit fails with
// store.ErrConcurrencyConflict so the caller can retry.
func InOrderScope(ctx context.Context, st store.Store, orderID string, fn func(store.Tx, *order.Order) error) error {
	var scope store.Scope
	err := st.View(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		scope, err = LockScope(ctx, tx, o)
		return err
	})
	if err != nil {
		return err
	}

	return st.WithScopeLock(ctx, scope, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		current, err := LockScope(ctx, tx, o)
		if err != nil {
			return err
		}
		if !scope.Covers(current) {
			return fmt.Errorf("%w: lock scope of order %s changed", store.ErrConcurrencyConflict, orderID)
		}
		return fn(tx, o)
	})
}

// IsRejection reports whether err is a business rule violation rather than a
// failure of the validation itself.
func IsRejection(err error) bool {
	return errors.Is(err, ErrValidationFailed)
}
