package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/ticket-shotgun/internal/domain/order"
	"github.com/example/ticket-shotgun/internal/domain/sale"
	"github.com/lib/pq"
)

// PostgreSQL error codes that mean "try again".
const (
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
	pqLockNotAvailable     = "55P03"
)

// PostgresStore stores the inventory hierarchy, orders and tickets in
// PostgreSQL. Scope locks are transaction-level advisory locks, so they are
// released by COMMIT or ROLLBACK and never outlive the unit of work.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) WithScopeLock(ctx context.Context, scope Scope, fn func(Tx) error) error {
	return s.run(ctx, nil, func(tx *sql.Tx) error {
		for _, key := range scope.LockKeys() {
			if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
				return fmt.Errorf("lock %s: %w", key, err)
			}
		}
		return fn(&pgTx{tx: tx})
	})
}

func (s *PostgresStore) View(ctx context.Context, fn func(Tx) error) error {
	return s.run(ctx, &sql.TxOptions{ReadOnly: true}, func(tx *sql.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *PostgresStore) run(ctx context.Context, opts *sql.TxOptions, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return mapPQError(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return mapPQError(err)
	}
	return mapPQError(tx.Commit())
}

// mapPQError turns retryable PostgreSQL failures into ErrConcurrencyConflict
// and leaves everything else untouched.
func mapPQError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqSerializationFailure, pqDeadlockDetected, pqLockNotAvailable:
			return fmt.Errorf("%w: %s", ErrConcurrencyConflict, pqErr.Message)
		}
	}
	return err
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) GetSale(ctx context.Context, id string) (*sale.Sale, error) {
	var s sale.Sale
	var maxQty sql.NullInt64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, is_active, begin_at, end_at, max_payment_date, max_item_quantity
		FROM sales WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.IsActive, &s.BeginAt, &s.EndAt, &s.MaxPaymentDate, &maxQty)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sale.ErrSaleNotFound
	}
	if err != nil {
		return nil, err
	}
	s.MaxItemQuantity = nullableInt(maxQty)
	return &s, nil
}

func (t *pgTx) ListActiveSales(ctx context.Context) ([]*sale.Sale, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, name, is_active, begin_at, end_at, max_payment_date, max_item_quantity
		FROM sales WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*sale.Sale
	for rows.Next() {
		var s sale.Sale
		var maxQty sql.NullInt64
		if err := rows.Scan(&s.ID, &s.Name, &s.IsActive, &s.BeginAt, &s.EndAt, &s.MaxPaymentDate, &maxQty); err != nil {
			return nil, err
		}
		s.MaxItemQuantity = nullableInt(maxQty)
		sales = append(sales, &s)
	}
	return sales, rows.Err()
}

func (t *pgTx) GetGroup(ctx context.Context, id string) (*sale.ItemGroup, error) {
	var g sale.ItemGroup
	var qty, perUser sql.NullInt64
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, name, quantity, max_per_user FROM item_groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &qty, &perUser)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sale.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	g.Quantity = nullableInt(qty)
	g.MaxPerUser = nullableInt(perUser)
	return &g, nil
}

const itemColumns = `id, sale_id, group_id, name, is_active, quantity, max_per_user, price, user_types, fields`

func scanItem(row interface{ Scan(...any) error }) (*sale.Item, error) {
	var i sale.Item
	var groupID sql.NullString
	var qty, perUser sql.NullInt64
	var userTypes pq.StringArray
	var fields []byte
	if err := row.Scan(&i.ID, &i.SaleID, &groupID, &i.Name, &i.IsActive, &qty, &perUser, &i.Price, &userTypes, &fields); err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &i.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of item %s: %w", i.ID, err)
		}
	}
	if groupID.Valid {
		i.GroupID = &groupID.String
	}
	i.Quantity = nullableInt(qty)
	i.MaxPerUser = nullableInt(perUser)
	i.UserTypes = []string(userTypes)
	return &i, nil
}

func (t *pgTx) GetItem(ctx context.Context, id string) (*sale.Item, error) {
	item, err := scanItem(t.tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sale.ErrItemNotFound
	}
	return item, err
}

func (t *pgTx) ListItems(ctx context.Context, saleID string) ([]*sale.Item, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT `+itemColumns+` FROM items WHERE sale_id = $1 ORDER BY id`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*sale.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

const orderColumns = `id, owner_id, sale_id, status, created_at, updated_at`

func (t *pgTx) GetOrder(ctx context.Context, id string) (*order.Order, error) {
	var o order.Order
	err := t.tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.OwnerID, &o.SaleID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, order.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := t.loadLines(ctx, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *pgTx) FindOrder(ctx context.Context, saleID, ownerID string, status order.Status) (*order.Order, error) {
	orders, err := t.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE sale_id = $1 AND owner_id = $2 AND status = $3
		ORDER BY created_at, id LIMIT 1`, saleID, ownerID, status)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, order.ErrOrderNotFound
	}
	return orders[0], nil
}

func (t *pgTx) ListOrdersByStatus(ctx context.Context, saleID string, statuses []order.Status) ([]*order.Order, error) {
	return t.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE sale_id = $1 AND status = ANY($2)
		ORDER BY created_at, id`, saleID, statusArray(statuses))
}

func (t *pgTx) ListOrdersByOwner(ctx context.Context, ownerID string) ([]*order.Order, error) {
	return t.queryOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE owner_id = $1
		ORDER BY created_at, id`, ownerID)
}

func (t *pgTx) queryOrders(ctx context.Context, query string, args ...any) ([]*order.Order, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var orders []*order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.OwnerID, &o.SaleID, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, &o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, o := range orders {
		if err := t.loadLines(ctx, o); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (t *pgTx) loadLines(ctx context.Context, o *order.Order) error {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, order_id, item_id, quantity FROM order_lines WHERE order_id = $1 ORDER BY position`, o.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	o.Lines = []order.OrderLine{}
	for rows.Next() {
		var l order.OrderLine
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ItemID, &l.Quantity); err != nil {
			return err
		}
		o.Lines = append(o.Lines, l)
	}
	return rows.Err()
}

func (t *pgTx) BookedLines(ctx context.Context, saleID, excludeOrderID string) ([]BookedLine, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT o.id, o.owner_id, o.status, o.updated_at, l.item_id, COALESCE(i.group_id, ''), l.quantity
		FROM orders o
		JOIN order_lines l ON l.order_id = o.id
		JOIN items i ON i.id = l.item_id
		WHERE o.sale_id = $1 AND o.id <> $2 AND o.status = ANY($3)`,
		saleID, excludeOrderID, statusArray(order.BookedStatuses()),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []BookedLine
	for rows.Next() {
		var b BookedLine
		if err := rows.Scan(&b.OrderID, &b.OwnerID, &b.Status, &b.UpdatedAt, &b.ItemID, &b.GroupID, &b.Quantity); err != nil {
			return nil, err
		}
		lines = append(lines, b)
	}
	return lines, rows.Err()
}

func (t *pgTx) ListTickets(ctx context.Context, orderID string) ([]order.OrderLineItem, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT t.id, t.order_line_id, t.created_at
		FROM order_line_items t
		JOIN order_lines l ON l.id = t.order_line_id
		WHERE l.order_id = $1
		ORDER BY l.position, t.created_at, t.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []order.OrderLineItem
	for rows.Next() {
		var tk order.OrderLineItem
		if err := rows.Scan(&tk.ID, &tk.OrderLineID, &tk.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, tk)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return tickets, nil
	}
	return tickets, t.loadTicketFields(ctx, orderID, tickets)
}

func (t *pgTx) loadTicketFields(ctx context.Context, orderID string, tickets []order.OrderLineItem) error {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT f.ticket_id, f.field_id, f.value
		FROM order_line_item_fields f
		JOIN order_line_items t ON t.id = f.ticket_id
		JOIN order_lines l ON l.id = t.order_line_id
		WHERE l.order_id = $1`, orderID)
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[string]int, len(tickets))
	for i, tk := range tickets {
		index[tk.ID] = i
	}
	for rows.Next() {
		var ticketID, fieldID, value string
		if err := rows.Scan(&ticketID, &fieldID, &value); err != nil {
			return err
		}
		i, ok := index[ticketID]
		if !ok {
			continue
		}
		if tickets[i].Fields == nil {
			tickets[i].Fields = make(map[string]string)
		}
		tickets[i].Fields[fieldID] = value
	}
	return rows.Err()
}

func (t *pgTx) PutSale(ctx context.Context, s *sale.Sale) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sales (id, name, is_active, begin_at, end_at, max_payment_date, max_item_quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			begin_at = EXCLUDED.begin_at,
			end_at = EXCLUDED.end_at,
			max_payment_date = EXCLUDED.max_payment_date,
			max_item_quantity = EXCLUDED.max_item_quantity`,
		s.ID, s.Name, s.IsActive, s.BeginAt, s.EndAt, s.MaxPaymentDate, s.MaxItemQuantity)
	return err
}

func (t *pgTx) PutGroup(ctx context.Context, g *sale.ItemGroup) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO item_groups (id, name, quantity, max_per_user)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			quantity = EXCLUDED.quantity,
			max_per_user = EXCLUDED.max_per_user`,
		g.ID, g.Name, g.Quantity, g.MaxPerUser)
	return err
}

func (t *pgTx) PutItem(ctx context.Context, i *sale.Item) error {
	fields := []byte("[]")
	if len(i.Fields) > 0 {
		var err error
		if fields, err = json.Marshal(i.Fields); err != nil {
			return err
		}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			sale_id = EXCLUDED.sale_id,
			group_id = EXCLUDED.group_id,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			quantity = EXCLUDED.quantity,
			max_per_user = EXCLUDED.max_per_user,
			price = EXCLUDED.price,
			user_types = EXCLUDED.user_types,
			fields = EXCLUDED.fields`,
		i.ID, i.SaleID, i.GroupID, i.Name, i.IsActive, i.Quantity, i.MaxPerUser, i.Price, pq.StringArray(i.UserTypes), fields)
	return err
}

func (t *pgTx) SaveOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		o.ID, o.OwnerID, o.SaleID, o.Status, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, o.ID); err != nil {
		return err
	}
	for pos, l := range o.Lines {
		if _, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, item_id, quantity, position)
			VALUES ($1, $2, $3, $4, $5)`,
			l.ID, o.ID, l.ItemID, l.Quantity, pos); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status, updatedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`, orderID, status, updatedAt)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return order.ErrOrderNotFound
	}
	return nil
}

func (t *pgTx) InsertTickets(ctx context.Context, tickets []order.OrderLineItem) error {
	if len(tickets) == 0 {
		return nil
	}
	stmt, err := t.tx.PrepareContext(ctx, pq.CopyIn("order_line_items", "id", "order_line_id", "created_at"))
	if err != nil {
		return err
	}
	for _, tk := range tickets {
		if _, err := stmt.ExecContext(ctx, tk.ID, tk.OrderLineID, tk.CreatedAt); err != nil {
			_ = stmt.Close()
			return err
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return err
	}
	if err := stmt.Close(); err != nil {
		return err
	}

	for _, tk := range tickets {
		for fieldID, value := range tk.Fields {
			if err := t.SetTicketField(ctx, tk.ID, fieldID, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *pgTx) SetTicketField(ctx context.Context, ticketID, fieldID, value string) error {
	var exists bool
	if err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM order_line_items WHERE id::text = $1)`, ticketID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return order.ErrTicketNotFound
	}

	if value == "" {
		_, err := t.tx.ExecContext(ctx,
			`DELETE FROM order_line_item_fields WHERE ticket_id::text = $1 AND field_id = $2`, ticketID, fieldID)
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO order_line_item_fields (ticket_id, field_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (ticket_id, field_id) DO UPDATE SET value = EXCLUDED.value`,
		ticketID, fieldID, value)
	return err
}

func nullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func statusArray(statuses []order.Status) pq.StringArray {
	out := make(pq.StringArray, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}
