package store

import (
	"slices"
)

// Scope names the inventory rows a unit of work must hold exclusively: the
// sale, the item groups, the items and the orders it reads or writes.
type Scope struct {
	SaleID   string
	GroupIDs []string
	ItemIDs  []string
	OrderIDs []string
}

// OrderScope locks a single order.
func OrderScope(orderID string) Scope {
	return Scope{OrderIDs: []string{orderID}}
}

// LockKeys returns the scope as a sorted, de-duplicated list of lock keys.
// Acquiring locks in this order keeps concurrent units deadlock free.
func (s Scope) LockKeys() []string {
	keys := make([]string, 0, 1+len(s.GroupIDs)+len(s.ItemIDs)+len(s.OrderIDs))
	if s.SaleID != "" {
		keys = append(keys, "sale:"+s.SaleID)
	}
	for _, id := range s.GroupIDs {
		keys = append(keys, "group:"+id)
	}
	for _, id := range s.ItemIDs {
		keys = append(keys, "item:"+id)
	}
	for _, id := range s.OrderIDs {
		keys = append(keys, "order:"+id)
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

// Covers reports whether every key of other is also held by s.
func (s Scope) Covers(other Scope) bool {
	held := s.LockKeys()
	for _, k := range other.LockKeys() {
		if _, found := slices.BinarySearch(held, k); !found {
			return false
		}
	}
	return true
}
