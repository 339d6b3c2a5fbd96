package query

// Re-export read models from readmodel package
import "github.com/example/ticket-shotgun/internal/readmodel"

type ItemReadModel = readmodel.ItemReadModel
type SaleReadModel = readmodel.SaleReadModel
type OrderLineReadModel = readmodel.OrderLineReadModel
type OrderReadModel = readmodel.OrderReadModel
type TicketReadModel = readmodel.TicketReadModel
type TicketFieldReadModel = readmodel.TicketFieldReadModel
