package store

import (
	"context"
	"database/sql"
)

// Schema is the DDL PostgresStore expects.
const Schema = `
CREATE TABLE IF NOT EXISTS sales (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL DEFAULT '',
	is_active         BOOLEAN NOT NULL DEFAULT FALSE,
	begin_at          TIMESTAMPTZ NOT NULL,
	end_at            TIMESTAMPTZ NOT NULL,
	max_payment_date  TIMESTAMPTZ NOT NULL,
	max_item_quantity INTEGER CHECK (max_item_quantity >= 0)
);

CREATE TABLE IF NOT EXISTS item_groups (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	quantity     INTEGER CHECK (quantity >= 0),
	max_per_user INTEGER CHECK (max_per_user >= 0)
);

CREATE TABLE IF NOT EXISTS items (
	id           TEXT PRIMARY KEY,
	sale_id      TEXT NOT NULL REFERENCES sales (id),
	group_id     TEXT REFERENCES item_groups (id),
	name         TEXT NOT NULL DEFAULT '',
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	quantity     INTEGER CHECK (quantity >= 0),
	max_per_user INTEGER CHECK (max_per_user >= 0),
	price        INTEGER NOT NULL DEFAULT 0,
	user_types   TEXT[] NOT NULL DEFAULT '{}',
	fields       JSONB NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS orders (
	id         TEXT PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	sale_id    TEXT NOT NULL REFERENCES sales (id),
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_sale_status_idx ON orders (sale_id, status);
CREATE INDEX IF NOT EXISTS orders_owner_idx ON orders (owner_id);

CREATE TABLE IF NOT EXISTS order_lines (
	id       TEXT PRIMARY KEY,
	order_id TEXT NOT NULL REFERENCES orders (id),
	item_id  TEXT NOT NULL REFERENCES items (id),
	quantity INTEGER NOT NULL CHECK (quantity > 0),
	position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS order_lines_order_idx ON order_lines (order_id);

CREATE TABLE IF NOT EXISTS order_line_items (
	id            UUID PRIMARY KEY,
	order_line_id TEXT NOT NULL REFERENCES order_lines (id),
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS order_line_items_line_idx ON order_line_items (order_line_id);

CREATE TABLE IF NOT EXISTS order_line_item_fields (
	ticket_id UUID NOT NULL REFERENCES order_line_items (id),
	field_id  TEXT NOT NULL,
	value     TEXT NOT NULL,
	PRIMARY KEY (ticket_id, field_id)
);

CREATE TABLE IF NOT EXISTS profiles (
	user_id    TEXT PRIMARY KEY,
	email      TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	user_type  TEXT NOT NULL DEFAULT ''
);
`

// EnsureSchema creates missing tables.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}
