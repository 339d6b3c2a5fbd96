package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
)

// ErrConcurrencyConflict is returned when a lock could not be taken or the
// database aborted the transaction to keep it serializable. It is transient.
var ErrConcurrencyConflict = errors.New("concurrency conflict")

// Store runs units of work against persistent state. Every unit is a single
// transaction: its writes are all committed or none are.
type Store interface {
	// WithScopeLock runs fn while holding exclusive locks on every key of
	// scope. Units whose scopes are disjoint proceed in parallel.
	WithScopeLock(ctx context.Context, scope Scope, fn func(Tx) error) error

	// View runs fn without taking any lock.
	View(ctx context.Context, fn func(Tx) error) error
}

// BookedLine is one order line of an order in a booked status, flattened with
// what the aggregator needs to place it in a scope.
type BookedLine struct {
	OrderID   string
	OwnerID   string
	Status    order.Status
	UpdatedAt time.Time
	ItemID    string
	GroupID   string
	Quantity  int
}

// Tx is the view of the store inside a unit of work.
type Tx interface {
	GetSale(ctx context.Context, id string) (*sale.Sale, error)
	ListActiveSales(ctx context.Context) ([]*sale.Sale, error)
	GetGroup(ctx context.Context, id string) (*sale.ItemGroup, error)
	GetItem(ctx context.Context, id string) (*sale.Item, error)
	ListItems(ctx context.Context, saleID string) ([]*sale.Item, error)

	GetOrder(ctx context.Context, id string) (*order.Order, error)
	FindOrder(ctx context.Context, saleID, ownerID string, status order.Status) (*order.Order, error)
	ListOrdersByStatus(ctx context.Context, saleID string, statuses []order.Status) ([]*order.Order, error)
	ListOrdersByOwner(ctx context.Context, ownerID string) ([]*order.Order, error)
	// BookedLines returns the lines of every order of the sale stored in a
	// booked status, except those of excludeOrderID.
	BookedLines(ctx context.Context, saleID, excludeOrderID string) ([]BookedLine, error)
	ListTickets(ctx context.Context, orderID string) ([]order.OrderLineItem, error)

	PutSale(ctx context.Context, s *sale.Sale) error
	PutGroup(ctx context.Context, g *sale.ItemGroup) error
	PutItem(ctx context.Context, i *sale.Item) error
	// SaveOrder inserts or replaces the order together with its lines.
	SaveOrder(ctx context.Context, o *order.Order) error
	UpdateOrderStatus(ctx context.Context, orderID string, status order.Status, updatedAt time.Time) error
	InsertTickets(ctx context.Context, tickets []order.OrderLineItem) error
	// SetTicketField stores one custom value of a ticket; an empty value
	// removes it.
	SetTicketField(ctx context.Context, ticketID, fieldID, value string) error
}
