// Package quantity sums the stock already held by booked orders so that caps
// at the sale, group and item level can be checked.
package quantity

import (
	"context"
	"fmt"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
)

// Scope selects which lines count toward a sum. The zero value is the whole
// sale; GroupID and ItemID narrow it to one group or one item.
type Scope struct {
	GroupID string
	ItemID  string
}

func SaleScope() Scope                { return Scope{} }
func GroupScope(groupID string) Scope { return Scope{GroupID: groupID} }
func ItemScope(itemID string) Scope   { return Scope{ItemID: itemID} }

func (s Scope) contains(l store.BookedLine) bool {
	switch {
	case s.ItemID != "":
		return l.ItemID == s.ItemID
	case s.GroupID != "":
		return l.GroupID == s.GroupID
	default:
		return true
	}
}

// Tally is a snapshot of the booked lines of one sale, taken inside a unit of
// work. It must not outlive that unit.
type Tally struct {
	lines []store.BookedLine
}

// Load reads the booked lines of saleID, leaving out excludeOrderID and every
// order whose timer has run out at now.
func Load(ctx context.Context, tx store.Tx, saleID, excludeOrderID string, now time.Time, timeouts order.Timeouts) (*Tally, error) {
	lines, err := tx.BookedLines(ctx, saleID, excludeOrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booked lines of sale %s: %w", saleID, err)
	}

	kept := lines[:0]
	for _, l := range lines {
		if timeouts.IsLogicallyExpired(l.Status, l.UpdatedAt, now) {
			continue
		}
		kept = append(kept, l)
	}
	return &Tally{lines: kept}, nil
}

// Committed is the quantity held in scope by every counted order.
func (t *Tally) Committed(s Scope) int {
	var total int
	for _, l := range t.lines {
		if s.contains(l) {
			total += l.Quantity
		}
	}
	return total
}

// OwnedBy is the quantity held in scope by the counted orders of one owner.
func (t *Tally) OwnedBy(s Scope, ownerID string) int {
	var total int
	for _, l := range t.lines {
		if l.OwnerID == ownerID && s.contains(l) {
			total += l.Quantity
		}
	}
	return total
}

// Orders returns the number of distinct orders the tally counts.
func (t *Tally) Orders() int {
	seen := make(map[string]struct{})
	for _, l := range t.lines {
		seen[l.OrderID] = struct{}{}
	}
	return len(seen)
}
