package crdb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the transactional store. The partial unique index
// on tickets is the seat-uniqueness enforcement: at most one
// non-cancelled ticket per (performance, section, row, seat).
const Schema = `
CREATE TABLE IF NOT EXISTS performances (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL,
	total_capacity INT NOT NULL CHECK (total_capacity >= 0),
	available_tickets INT NOT NULL CHECK (available_tickets >= 0 AND available_tickets <= total_capacity),
	ticket_types JSONB NOT NULL DEFAULT '[]',
	is_sold_out BOOL NOT NULL DEFAULT false,
	is_cancelled BOOL NOT NULL DEFAULT false,
	is_active BOOL NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	provider_ref TEXT NOT NULL DEFAULT '',
	amount NUMERIC NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'PROCESSING', 'COMPLETED', 'FAILED', 'REFUNDED')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS orders (
	id UUID PRIMARY KEY,
	customer_id UUID NOT NULL,
	payment_id UUID NOT NULL REFERENCES payments (id),
	performance_id UUID NOT NULL REFERENCES performances (id),
	status TEXT NOT NULL CHECK (status IN ('CONFIRMED', 'CANCELLED', 'REFUNDED')),
	total_amount NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	ticket_number TEXT NOT NULL UNIQUE,
	order_id UUID NOT NULL REFERENCES orders (id),
	performance_id UUID NOT NULL REFERENCES performances (id),
	customer_id UUID NOT NULL,
	category TEXT NOT NULL,
	section TEXT NOT NULL,
	row_label TEXT NOT NULL,
	seat_number TEXT NOT NULL,
	price NUMERIC NOT NULL CHECK (price >= 0),
	status TEXT NOT NULL CHECK (status IN ('RESERVED', 'PURCHASED', 'ACTIVE', 'USED', 'CANCELLED', 'REFUNDED')),
	payment_status TEXT NOT NULL CHECK (payment_status IN ('PENDING', 'PAID', 'COMPLETED', 'REFUNDED', 'CANCELLED', 'FAILED')),
	verification_code TEXT NOT NULL,
	customer_name TEXT NOT NULL DEFAULT '',
	customer_email TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS tickets_live_seat
	ON tickets (performance_id, section, row_label, seat_number)
	WHERE status NOT IN ('CANCELLED', 'REFUNDED');

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS outbox_new ON outbox (created_at) WHERE status = 'NEW';
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
