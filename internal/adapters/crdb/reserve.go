package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/squadevents/rsvp-engine/internal/domain"
)

// reserveSQL is the primary reserve mechanism: duplicate check, capacity
// check, ticket insert, counter upsert and outbox write as one conditional
// statement. CockroachDB runs single statements as serializable transactions,
// so a concurrent writer touching the same counter row aborts one side with a
// serialization failure instead of letting both through.
//
// cur and dup read the pre-statement snapshot; the ON CONFLICT DO NOTHING on
// the insert covers the window a concurrent same-pair insert commits in.
// Capacity $6 <= 0 means unlimited.
const reserveSQL = `
WITH cur AS (
	SELECT COALESCE((SELECT registration_count FROM event_counters WHERE event_id = $2), 0) AS registration_count
),
dup AS (
	SELECT 1 FROM tickets WHERE event_id = $2 AND actor_id = $3
),
ins AS (
	INSERT INTO tickets (id, event_id, actor_id, created_at, qr_payload)
	SELECT $1, $2, $3, $4, $5
	WHERE NOT EXISTS (SELECT 1 FROM dup)
	  AND ($6 <= 0 OR (SELECT registration_count FROM cur) < $6)
	ON CONFLICT (event_id, actor_id) DO NOTHING
	RETURNING id
),
bump AS (
	INSERT INTO event_counters (event_id, registration_count)
	SELECT $2, 1 WHERE EXISTS (SELECT 1 FROM ins)
	ON CONFLICT (event_id) DO UPDATE SET registration_count = event_counters.registration_count + 1
	RETURNING registration_count
),
obx AS (
	INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
	SELECT $7, 'counter', $2, 'counter.updated',
	       jsonb_build_object('event_id', $2::TEXT, 'registration_count', (SELECT registration_count FROM bump)),
	       'NEW', $8
	WHERE EXISTS (SELECT 1 FROM ins)
)
SELECT EXISTS (SELECT 1 FROM ins),
       EXISTS (SELECT 1 FROM dup),
       (SELECT registration_count FROM cur),
       COALESCE((SELECT registration_count FROM bump), (SELECT registration_count FROM cur))
`

// ReserveAtomic attempts the conditional reserve statement once and returns
// the new registration count on success. Failures come back classified:
// domain.ErrAlreadyReserved, domain.ErrEventFull, or domain.ErrTransient for
// a serialization abort the caller may retry through the fallback.
func (r *Repository) ReserveAtomic(ctx context.Context, t domain.Ticket, capacity int) (int, error) {
	var inserted, duplicate bool
	var prior, newCount int

	err := r.pool.QueryRow(ctx, reserveSQL,
		t.ID, t.EventID, t.ActorID, t.CreatedAt, t.QRPayload, capacity,
		uuid.New(), uuid.New().String(),
	).Scan(&inserted, &duplicate, &prior, &newCount)
	if err != nil {
		if IsSerializationFailure(err) {
			return 0, domain.MarkTransient(err)
		}
		if IsUniqueViolation(err) {
			return 0, domain.ErrAlreadyReserved
		}
		return 0, err
	}

	if inserted {
		return newCount, nil
	}
	if duplicate {
		return 0, domain.ErrAlreadyReserved
	}
	if capacity > 0 && prior >= capacity {
		return 0, domain.ErrEventFull
	}
	// The insert was suppressed by a concurrent same-pair commit.
	return 0, domain.ErrAlreadyReserved
}

// ReserveFallback re-performs the duplicate and capacity checks inside an
// explicit transaction, holding the counter row under FOR UPDATE for the
// duration of the check-and-increment. The unique constraint on
// (event_id, actor_id) catches a last-moment duplicate.
func (r *Repository) ReserveFallback(ctx context.Context, t domain.Ticket, capacity int) (int, error) {
	var newCount int
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		// Seed the counter row so there is something to lock on first use.
		if _, err := tx.Exec(ctx, `
			INSERT INTO event_counters (event_id, registration_count)
			VALUES ($1, 0)
			ON CONFLICT (event_id) DO NOTHING
		`, t.EventID); err != nil {
			return err
		}

		var current int
		if err := tx.QueryRow(ctx, `
			SELECT registration_count FROM event_counters WHERE event_id = $1 FOR UPDATE
		`, t.EventID).Scan(&current); err != nil {
			return err
		}

		var exists bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM tickets WHERE event_id = $1 AND actor_id = $2)
		`, t.EventID, t.ActorID).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return domain.ErrAlreadyReserved
		}
		if capacity > 0 && current >= capacity {
			return domain.ErrEventFull
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO tickets (id, event_id, actor_id, created_at, qr_payload)
			VALUES ($1, $2, $3, $4, $5)
		`, t.ID, t.EventID, t.ActorID, t.CreatedAt, t.QRPayload); err != nil {
			if IsUniqueViolation(err) {
				return domain.ErrAlreadyReserved
			}
			return err
		}

		if err := tx.QueryRow(ctx, `
			UPDATE event_counters SET registration_count = registration_count + 1
			WHERE event_id = $1
			RETURNING registration_count
		`, t.EventID).Scan(&newCount); err != nil {
			return err
		}

		return r.insertCounterOutbox(ctx, tx, t.EventID, newCount, "counter.updated")
	})
	if err != nil {
		return 0, err
	}
	return newCount, nil
}

// CancelTicket deletes the pair's ticket and decrements the counter in one
// transaction. Absence is not an error; deleted reports whether anything
// changed.
func (r *Repository) CancelTicket(ctx context.Context, eventID, actorID uuid.UUID) (bool, int, error) {
	var deleted bool
	var newCount int
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM tickets WHERE event_id = $1 AND actor_id = $2
		`, eventID, actorID)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected() > 0
		if !deleted {
			return nil
		}

		if err := tx.QueryRow(ctx, `
			UPDATE event_counters
			SET registration_count = GREATEST(registration_count - 1, 0)
			WHERE event_id = $1
			RETURNING registration_count
		`, eventID).Scan(&newCount); err != nil {
			if err == pgx.ErrNoRows {
				// Ticket existed without a counter row; sync will settle it.
				newCount = 0
				return nil
			}
			return err
		}

		return r.insertCounterOutbox(ctx, tx, eventID, newCount, "counter.updated")
	})
	if err != nil {
		return false, 0, err
	}
	return deleted, newCount, nil
}

// SyncCounter recomputes the counter from a fresh ticket scan under the same
// lock the increment and decrement paths take, so a concurrent reserve cannot
// interleave a stale overwrite.
func (r *Repository) SyncCounter(ctx context.Context, eventID uuid.UUID) (int, error) {
	var actual int
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO event_counters (event_id, registration_count)
			VALUES ($1, 0)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID); err != nil {
			return err
		}

		var stored int
		if err := tx.QueryRow(ctx, `
			SELECT registration_count FROM event_counters WHERE event_id = $1 FOR UPDATE
		`, eventID).Scan(&stored); err != nil {
			return err
		}

		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM tickets WHERE event_id = $1
		`, eventID).Scan(&actual); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			UPDATE event_counters SET registration_count = $2 WHERE event_id = $1
		`, eventID, actual); err != nil {
			return err
		}

		return r.insertCounterOutbox(ctx, tx, eventID, actual, "counter.synced")
	})
	if err != nil {
		return 0, err
	}
	return actual, nil
}
