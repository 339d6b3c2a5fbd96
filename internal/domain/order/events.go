package order

import "time"

const AggregateType = "Order"

const (
	EventOrderSubmitted = "OrderSubmitted"
	EventOrderPaid      = "OrderPaid"
	EventOrderExpired   = "OrderExpired"
	EventOrderCancelled = "OrderCancelled"
)

type OrderSubmitted struct {
	OrderID     string    `json:"order_id"`
	OwnerID     string    `json:"owner_id"`
	SaleID      string    `json:"sale_id"`
	Quantity    int       `json:"quantity"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type OrderPaid struct {
	OrderID   string    `json:"order_id"`
	OwnerID   string    `json:"owner_id"`
	SaleID    string    `json:"sale_id"`
	TicketIDs []string  `json:"ticket_ids"`
	PaidAt    time.Time `json:"paid_at"`
}

type OrderExpired struct {
	OrderID   string    `json:"order_id"`
	From      Status    `json:"from"`
	ExpiredAt time.Time `json:"expired_at"`
}

type OrderCancelled struct {
	OrderID     string    `json:"order_id"`
	Reason      string    `json:"reason"`
	CancelledAt time.Time `json:"cancelled_at"`
}
