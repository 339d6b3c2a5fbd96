package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
)

var errReadOnly = errors.New("write in read-only transaction")

// MemoryStore keeps everything in process. Writes of a unit are staged and
// applied together on commit; locks come from a LockTable.
type MemoryStore struct {
	locks *LockTable

	mu        sync.RWMutex
	sales     map[string]sale.Sale
	groups    map[string]sale.ItemGroup
	items     map[string]sale.Item
	orders    map[string]*order.Order
	tickets   map[string][]order.OrderLineItem // order line id -> tickets
	ticketIDs map[string]struct{}
	fields    map[string]map[string]string // ticket id -> field id -> value
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:     NewLockTable(),
		sales:     make(map[string]sale.Sale),
		groups:    make(map[string]sale.ItemGroup),
		items:     make(map[string]sale.Item),
		orders:    make(map[string]*order.Order),
		tickets:   make(map[string][]order.OrderLineItem),
		ticketIDs: make(map[string]struct{}),
		fields:    make(map[string]map[string]string),
	}
}

func (s *MemoryStore) WithScopeLock(ctx context.Context, scope Scope, fn func(Tx) error) error {
	release, err := s.locks.Acquire(ctx, scope.LockKeys())
	if err != nil {
		return err
	}
	defer release()

	tx := s.begin(false)
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) View(ctx context.Context, fn func(Tx) error) error {
	return fn(s.begin(true))
}

// TicketCount returns the number of tickets stored across all orders.
func (s *MemoryStore) TicketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ticketIDs)
}

func (s *MemoryStore) begin(readOnly bool) *memTx {
	return &memTx{
		store:    s,
		readOnly: readOnly,
		sales:    make(map[string]sale.Sale),
		groups:   make(map[string]sale.ItemGroup),
		items:    make(map[string]sale.Item),
		orders:   make(map[string]*order.Order),
	}
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range tx.tickets {
		if _, dup := s.ticketIDs[t.ID]; dup {
			return fmt.Errorf("duplicate ticket id %s", t.ID)
		}
	}
	for id, v := range tx.sales {
		s.sales[id] = v
	}
	for id, v := range tx.groups {
		s.groups[id] = v
	}
	for id, v := range tx.items {
		s.items[id] = v
	}
	for id, o := range tx.orders {
		s.orders[id] = o
	}
	for _, t := range tx.tickets {
		fields := t.Fields
		t.Fields = nil
		s.tickets[t.OrderLineID] = append(s.tickets[t.OrderLineID], t)
		s.ticketIDs[t.ID] = struct{}{}
		for id, v := range fields {
			s.setField(t.ID, id, v)
		}
	}
	for _, w := range tx.fieldWrites {
		s.setField(w.ticketID, w.fieldID, w.value)
	}
	return nil
}

func (s *MemoryStore) setField(ticketID, fieldID, value string) {
	if value == "" {
		delete(s.fields[ticketID], fieldID)
		return
	}
	if s.fields[ticketID] == nil {
		s.fields[ticketID] = make(map[string]string)
	}
	s.fields[ticketID][fieldID] = value
}

type fieldWrite struct {
	ticketID, fieldID, value string
}

type memTx struct {
	store    *MemoryStore
	readOnly bool

	sales       map[string]sale.Sale
	groups      map[string]sale.ItemGroup
	items       map[string]sale.Item
	orders      map[string]*order.Order
	tickets     []order.OrderLineItem
	fieldWrites []fieldWrite
}

func (tx *memTx) GetSale(_ context.Context, id string) (*sale.Sale, error) {
	if v, ok := tx.sales[id]; ok {
		return &v, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	if v, ok := tx.store.sales[id]; ok {
		return &v, nil
	}
	return nil, sale.ErrSaleNotFound
}

func (tx *memTx) ListActiveSales(_ context.Context) ([]*sale.Sale, error) {
	merged := make(map[string]sale.Sale)
	tx.store.mu.RLock()
	for id, v := range tx.store.sales {
		merged[id] = v
	}
	tx.store.mu.RUnlock()
	for id, v := range tx.sales {
		merged[id] = v
	}

	var out []*sale.Sale
	for _, v := range merged {
		v := v
		if v.IsActive {
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) GetGroup(_ context.Context, id string) (*sale.ItemGroup, error) {
	if v, ok := tx.groups[id]; ok {
		return &v, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	if v, ok := tx.store.groups[id]; ok {
		return &v, nil
	}
	return nil, sale.ErrGroupNotFound
}

func (tx *memTx) GetItem(_ context.Context, id string) (*sale.Item, error) {
	if v, ok := tx.items[id]; ok {
		return &v, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	if v, ok := tx.store.items[id]; ok {
		return &v, nil
	}
	return nil, sale.ErrItemNotFound
}

func (tx *memTx) ListItems(_ context.Context, saleID string) ([]*sale.Item, error) {
	merged := make(map[string]sale.Item)
	tx.store.mu.RLock()
	for id, v := range tx.store.items {
		merged[id] = v
	}
	tx.store.mu.RUnlock()
	for id, v := range tx.items {
		merged[id] = v
	}

	var out []*sale.Item
	for _, v := range merged {
		v := v
		if v.SaleID == saleID {
			out = append(out, &v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) GetOrder(_ context.Context, id string) (*order.Order, error) {
	if o, ok := tx.orders[id]; ok {
		return o.Clone(), nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	if o, ok := tx.store.orders[id]; ok {
		return o.Clone(), nil
	}
	return nil, order.ErrOrderNotFound
}

// allOrders returns committed orders overlaid with this unit's staged ones,
// sorted by creation time.
func (tx *memTx) allOrders() []*order.Order {
	merged := make(map[string]*order.Order)
	tx.store.mu.RLock()
	for id, o := range tx.store.orders {
		merged[id] = o.Clone()
	}
	tx.store.mu.RUnlock()
	for id, o := range tx.orders {
		merged[id] = o.Clone()
	}

	out := make([]*order.Order, 0, len(merged))
	for _, o := range merged {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (tx *memTx) FindOrder(_ context.Context, saleID, ownerID string, status order.Status) (*order.Order, error) {
	for _, o := range tx.allOrders() {
		if o.SaleID == saleID && o.OwnerID == ownerID && o.Status == status {
			return o, nil
		}
	}
	return nil, order.ErrOrderNotFound
}

func (tx *memTx) ListOrdersByStatus(_ context.Context, saleID string, statuses []order.Status) ([]*order.Order, error) {
	var out []*order.Order
	for _, o := range tx.allOrders() {
		if o.SaleID != saleID {
			continue
		}
		for _, st := range statuses {
			if o.Status == st {
				out = append(out, o)
				break
			}
		}
	}
	return out, nil
}

func (tx *memTx) ListOrdersByOwner(_ context.Context, ownerID string) ([]*order.Order, error) {
	var out []*order.Order
	for _, o := range tx.allOrders() {
		if o.OwnerID == ownerID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (tx *memTx) BookedLines(ctx context.Context, saleID, excludeOrderID string) ([]BookedLine, error) {
	var out []BookedLine
	for _, o := range tx.allOrders() {
		if o.SaleID != saleID || o.ID == excludeOrderID || !o.Status.IsBooked() {
			continue
		}
		for _, l := range o.Lines {
			item, err := tx.GetItem(ctx, l.ItemID)
			if err != nil {
				return nil, fmt.Errorf("order %s line %s: %w", o.ID, l.ID, err)
			}
			out = append(out, BookedLine{
				OrderID:   o.ID,
				OwnerID:   o.OwnerID,
				Status:    o.Status,
				UpdatedAt: o.UpdatedAt,
				ItemID:    l.ItemID,
				GroupID:   item.Group(),
				Quantity:  l.Quantity,
			})
		}
	}
	return out, nil
}

func (tx *memTx) ListTickets(ctx context.Context, orderID string) ([]order.OrderLineItem, error) {
	o, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var out []order.OrderLineItem
	tx.store.mu.RLock()
	for _, l := range o.Lines {
		for _, t := range tx.store.tickets[l.ID] {
			t.Fields = copyFields(tx.store.fields[t.ID])
			out = append(out, t)
		}
	}
	tx.store.mu.RUnlock()
	for _, l := range o.Lines {
		for _, t := range tx.tickets {
			if t.OrderLineID == l.ID {
				t.Fields = copyFields(t.Fields)
				out = append(out, t)
			}
		}
	}
	for i := range out {
		for _, w := range tx.fieldWrites {
			if w.ticketID != out[i].ID {
				continue
			}
			if w.value == "" {
				delete(out[i].Fields, w.fieldID)
				continue
			}
			if out[i].Fields == nil {
				out[i].Fields = make(map[string]string)
			}
			out[i].Fields[w.fieldID] = w.value
		}
	}
	return out, nil
}

func copyFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	c := make(map[string]string, len(fields))
	for k, v := range fields {
		c[k] = v
	}
	return c
}

func (tx *memTx) PutSale(_ context.Context, s *sale.Sale) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.sales[s.ID] = *s
	return nil
}

func (tx *memTx) PutGroup(_ context.Context, g *sale.ItemGroup) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.groups[g.ID] = *g
	return nil
}

func (tx *memTx) PutItem(_ context.Context, i *sale.Item) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.items[i.ID] = *i
	return nil
}

func (tx *memTx) SaveOrder(_ context.Context, o *order.Order) error {
	if tx.readOnly {
		return errReadOnly
	}
	tx.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memTx) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status, updatedAt time.Time) error {
	if tx.readOnly {
		return errReadOnly
	}
	o, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	o.Status = status
	o.UpdatedAt = updatedAt
	tx.orders[orderID] = o
	return nil
}

func (tx *memTx) InsertTickets(_ context.Context, tickets []order.OrderLineItem) error {
	if tx.readOnly {
		return errReadOnly
	}
	for _, t := range tickets {
		t.Fields = copyFields(t.Fields)
		tx.tickets = append(tx.tickets, t)
	}
	return nil
}

func (tx *memTx) SetTicketField(_ context.Context, ticketID, fieldID, value string) error {
	if tx.readOnly {
		return errReadOnly
	}
	known := false
	for _, t := range tx.tickets {
		known = known || t.ID == ticketID
	}
	if !known {
		tx.store.mu.RLock()
		_, known = tx.store.ticketIDs[ticketID]
		tx.store.mu.RUnlock()
	}
	if !known {
		return order.ErrTicketNotFound
	}
	tx.fieldWrites = append(tx.fieldWrites, fieldWrite{ticketID: ticketID, fieldID: fieldID, value: value})
	return nil
}
