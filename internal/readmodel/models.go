package readmodel

import "time"

// ItemReadModel is an item as shown to buyers. Remaining is nil when the
// item has no quantity cap.
type ItemReadModel struct {
	ID         string   `json:"id"`
	GroupID    string   `json:"group_id,omitempty"`
	Name       string   `json:"name"`
	Price      int      `json:"price"`
	IsActive   bool     `json:"is_active"`
	MaxPerUser *int     `json:"max_per_user,omitempty"`
	Remaining  *int     `json:"remaining,omitempty"`
	UserTypes  []string `json:"user_types,omitempty"`
}

// SaleReadModel is the read model for a sale and its catalogue
type SaleReadModel struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	IsActive       bool            `json:"is_active"`
	IsOngoing      bool            `json:"is_ongoing"`
	BeginAt        time.Time       `json:"begin_at"`
	EndAt          time.Time       `json:"end_at"`
	MaxPaymentDate time.Time       `json:"max_payment_date"`
	Remaining      *int            `json:"remaining,omitempty"`
	Items          []ItemReadModel `json:"items"`
}

// OrderLineReadModel represents a line in an order
type OrderLineReadModel struct {
	ID       string `json:"id"`
	ItemID   string `json:"item_id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int    `json:"price"`
}

// OrderReadModel is the read model for orders. Status already accounts for
// timers that ran out.
type OrderReadModel struct {
	ID        string               `json:"id"`
	UserID    string               `json:"user_id"`
	SaleID    string               `json:"sale_id"`
	Lines     []OrderLineReadModel `json:"lines"`
	Total     int                  `json:"total"`
	Status    string               `json:"status"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// TicketFieldReadModel is one custom field of a ticket with its current value.
type TicketFieldReadModel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Value    string `json:"value"`
	Editable bool   `json:"editable"`
}

// TicketReadModel is one generated ticket
type TicketReadModel struct {
	ID          string                 `json:"id"`
	OrderLineID string                 `json:"order_line_id"`
	ItemID      string                 `json:"item_id"`
	ItemName    string                 `json:"item_name"`
	Fields      []TicketFieldReadModel `json:"fields"`
	CreatedAt   time.Time              `json:"created_at"`
}
