package order

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderLocked     = errors.New("order lines can only change while the order is ongoing")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrLineNotFound    = errors.New("order line not found")
	ErrEmptyOrder      = errors.New("order has no lines")
	ErrTicketNotFound  = errors.New("ticket not found")
)

type Order struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"owner_id"`
	SaleID    string      `json:"sale_id"`
	Status    Status      `json:"status"`
	Lines     []OrderLine `json:"lines"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type OrderLine struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// OrderLineItem is one ticket: a single fulfilled unit of an order line.
// Fields holds its custom values by field id.
type OrderLineItem struct {
	ID          string            `json:"id"`
	OrderLineID string            `json:"order_line_id"`
	CreatedAt   time.Time         `json:"created_at"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// New creates an ongoing order for owner in sale.
func New(ownerID, saleID string, now time.Time) *Order {
	return &Order{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		SaleID:    saleID,
		Status:    StatusOngoing,
		Lines:     []OrderLine{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	c.Lines = make([]OrderLine, len(o.Lines))
	copy(c.Lines, o.Lines)
	return &c
}

// TransitionTo moves the order to target, stamping UpdatedAt.
func (o *Order) TransitionTo(target Status, now time.Time) error {
	next, err := o.Status.Transition(target)
	if err != nil {
		return err
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// AddLine adds quantity units of item, merging with an existing line for the
// same item. It returns the line as stored.
func (o *Order) AddLine(itemID string, quantity int, now time.Time) (OrderLine, error) {
	if o.Status != StatusOngoing {
		return OrderLine{}, ErrOrderLocked
	}
	if quantity <= 0 {
		return OrderLine{}, ErrInvalidQuantity
	}
	o.UpdatedAt = now
	for i := range o.Lines {
		if o.Lines[i].ItemID == itemID {
			o.Lines[i].Quantity += quantity
			return o.Lines[i], nil
		}
	}
	line := OrderLine{
		ID:       uuid.New().String(),
		OrderID:  o.ID,
		ItemID:   itemID,
		Quantity: quantity,
	}
	o.Lines = append(o.Lines, line)
	return line, nil
}

// RemoveLine drops a line from an ongoing order.
func (o *Order) RemoveLine(lineID string, now time.Time) error {
	if o.Status != StatusOngoing {
		return ErrOrderLocked
	}
	for i := range o.Lines {
		if o.Lines[i].ID == lineID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			o.UpdatedAt = now
			return nil
		}
	}
	return ErrLineNotFound
}

// TotalQuantity sums the quantities of every line.
func (o *Order) TotalQuantity() int {
	var total int
	for _, l := range o.Lines {
		total += l.Quantity
	}
	return total
}

// ItemIDs lists the distinct items ordered, in line order.
func (o *Order) ItemIDs() []string {
	ids := make([]string, 0, len(o.Lines))
	seen := make(map[string]bool, len(o.Lines))
	for _, l := range o.Lines {
		if seen[l.ItemID] {
			continue
		}
		seen[l.ItemID] = true
		ids = append(ids, l.ItemID)
	}
	return ids
}

// Line returns the line with the given id.
func (o *Order) Line(id string) (OrderLine, error) {
	for _, l := range o.Lines {
		if l.ID == id {
			return l, nil
		}
	}
	return OrderLine{}, ErrLineNotFound
}

// NewTickets builds one ticket per unit of every line.
func (o *Order) NewTickets(now time.Time) []OrderLineItem {
	tickets := make([]OrderLineItem, 0, o.TotalQuantity())
	for _, l := range o.Lines {
		for j := 0; j < l.Quantity; j++ {
			tickets = append(tickets, OrderLineItem{
				ID:          uuid.New().String(),
				OrderLineID: l.ID,
				CreatedAt:   now,
			})
		}
	}
	return tickets
}
