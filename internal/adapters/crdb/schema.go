package crdb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for everything this service owns. The unique constraint on
// (event_id, actor_id) is the second line of defense behind the conditional
// reserve statement and must never be dropped.
const Schema = `
CREATE TABLE IF NOT EXISTS tickets (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL,
	actor_id UUID NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	checked_in BOOL NOT NULL DEFAULT false,
	checked_in_at TIMESTAMPTZ,
	qr_payload TEXT NOT NULL,
	UNIQUE (event_id, actor_id)
);
CREATE TABLE IF NOT EXISTS event_counters (
	event_id UUID PRIMARY KEY,
	registration_count INT NOT NULL DEFAULT 0 CHECK (registration_count >= 0)
);
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL
);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
