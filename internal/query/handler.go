package query

import (
	"context"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
	"github.com/example/ticket-shotgun/internal/infrastructure/store"
	"github.com/example/ticket-shotgun/internal/quantity"
)

// Handler serves reads straight from the store, without locks. Figures such
// as remaining stock are indicative; admission is decided by validation.
type Handler struct {
	store    store.Store
	timeouts order.Timeouts
	now      func() time.Time
}

func NewHandler(st store.Store, timeouts order.Timeouts, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{store: st, timeouts: timeouts, now: now}
}

// Sales
func (h *Handler) GetSale(ctx context.Context, id string) (*SaleReadModel, error) {
	var model *SaleReadModel
	err := h.store.View(ctx, func(tx store.Tx) error {
		s, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		model, err = h.saleModel(ctx, tx, s)
		return err
	})
	return model, err
}

func (h *Handler) ListSales(ctx context.Context) ([]*SaleReadModel, error) {
	var models []*SaleReadModel
	err := h.store.View(ctx, func(tx store.Tx) error {
		sales, err := tx.ListActiveSales(ctx)
		if err != nil {
			return err
		}
		models = make([]*SaleReadModel, 0, len(sales))
		for _, s := range sales {
			m, err := h.saleModel(ctx, tx, s)
			if err != nil {
				return err
			}
			models = append(models, m)
		}
		return nil
	})
	return models, err
}

func (h *Handler) saleModel(ctx context.Context, tx store.Tx, s *sale.Sale) (*SaleReadModel, error) {
	now := h.now()
	tally, err := quantity.Load(ctx, tx, s.ID, "", now, h.timeouts)
	if err != nil {
		return nil, err
	}
	items, err := tx.ListItems(ctx, s.ID)
	if err != nil {
		return nil, err
	}

	model := &SaleReadModel{
		ID:             s.ID,
		Name:           s.Name,
		IsActive:       s.IsActive,
		IsOngoing:      s.IsOngoing(now),
		BeginAt:        s.BeginAt,
		EndAt:          s.EndAt,
		MaxPaymentDate: s.MaxPaymentDate,
		Remaining:      left(s.MaxItemQuantity, tally.Committed(quantity.SaleScope())),
		Items:          make([]ItemReadModel, 0, len(items)),
	}
	for _, item := range items {
		model.Items = append(model.Items, ItemReadModel{
			ID:         item.ID,
			GroupID:    item.Group(),
			Name:       item.Name,
			Price:      item.Price,
			IsActive:   item.IsActive,
			MaxPerUser: item.MaxPerUser,
			Remaining:  left(item.Quantity, tally.Committed(quantity.ItemScope(item.ID))),
			UserTypes:  item.UserTypes,
		})
	}
	return model, nil
}

func left(capacity *int, committed int) *int {
	if capacity == nil {
		return nil
	}
	n := max(*capacity-committed, 0)
	return &n
}

// Orders
func (h *Handler) GetOrder(ctx context.Context, id string) (*OrderReadModel, error) {
	var model *OrderReadModel
	err := h.store.View(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		model, err = h.orderModel(ctx, tx, o)
		return err
	})
	return model, err
}

func (h *Handler) ListOrdersByUser(ctx context.Context, userID string) ([]*OrderReadModel, error) {
	var models []*OrderReadModel
	err := h.store.View(ctx, func(tx store.Tx) error {
		orders, err := tx.ListOrdersByOwner(ctx, userID)
		if err != nil {
			return err
		}
		models = make([]*OrderReadModel, 0, len(orders))
		for _, o := range orders {
			m, err := h.orderModel(ctx, tx, o)
			if err != nil {
				return err
			}
			models = append(models, m)
		}
		return nil
	})
	return models, err
}

func (h *Handler) orderModel(ctx context.Context, tx store.Tx, o *order.Order) (*OrderReadModel, error) {
	model := &OrderReadModel{
		ID:        o.ID,
		UserID:    o.OwnerID,
		SaleID:    o.SaleID,
		Lines:     make([]OrderLineReadModel, 0, len(o.Lines)),
		Status:    string(h.timeouts.EffectiveStatus(o, h.now())),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
	for _, l := range o.Lines {
		item, err := tx.GetItem(ctx, l.ItemID)
		if err != nil {
			return nil, err
		}
		model.Lines = append(model.Lines, OrderLineReadModel{
			ID:       l.ID,
			ItemID:   l.ItemID,
			Name:     item.Name,
			Quantity: l.Quantity,
			Price:    item.Price,
		})
		model.Total += item.Price * l.Quantity
	}
	return model, nil
}

// Tickets
func (h *Handler) ListTickets(ctx context.Context, orderID string) ([]TicketReadModel, error) {
	var models []TicketReadModel
	err := h.store.View(ctx, func(tx store.Tx) error {
		o, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		tickets, err := tx.ListTickets(ctx, orderID)
		if err != nil {
			return err
		}

		itemOfLine := make(map[string]string, len(o.Lines))
		for _, l := range o.Lines {
			itemOfLine[l.ID] = l.ItemID
		}
		models = make([]TicketReadModel, 0, len(tickets))
		for _, t := range tickets {
			item, err := tx.GetItem(ctx, itemOfLine[t.OrderLineID])
			if err != nil {
				return err
			}
			fields := make([]TicketFieldReadModel, 0, len(item.Fields))
			for _, f := range item.Fields {
				fields = append(fields, TicketFieldReadModel{
					ID:       f.ID,
					Name:     f.Name,
					Type:     string(f.Type),
					Value:    t.Fields[f.ID],
					Editable: f.Editable,
				})
			}
			models = append(models, TicketReadModel{
				ID:          t.ID,
				OrderLineID: t.OrderLineID,
				ItemID:      item.ID,
				ItemName:    item.Name,
				Fields:      fields,
				CreatedAt:   t.CreatedAt,
			})
		}
		return nil
	})
	return models, err
}
