package command

// Actor is the authenticated caller of a command.
type Actor struct {
	UserID   string `json:"user_id"`
	UserType string `json:"user_type"`
	Admin    bool   `json:"admin"`
}

// Order Commands
type CreateOrder struct {
	SaleID string `json:"sale_id"`
	Actor  Actor  `json:"-"`
}

type AddOrderLine struct {
	OrderID  string `json:"order_id"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Actor    Actor  `json:"-"`
}

type RemoveOrderLine struct {
	OrderID string `json:"order_id"`
	LineID  string `json:"line_id"`
	Actor   Actor  `json:"-"`
}

type ValidateOrder struct {
	OrderID string `json:"order_id"`
	Actor   Actor  `json:"-"`
}

type SubmitOrder struct {
	OrderID string `json:"order_id"`
	Actor   Actor  `json:"-"`
}

type CancelOrder struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
	Actor   Actor  `json:"-"`
}

// Ticket Commands
type UpdateTicketField struct {
	OrderID  string `json:"order_id"`
	TicketID string `json:"ticket_id"`
	FieldID  string `json:"field_id"`
	Value    string `json:"value"`
	Actor    Actor  `json:"-"`
}
