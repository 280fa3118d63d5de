package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/squadevents/rsvp-engine/internal/observability"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == UniqueViolationCode
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if IsSerializationFailure(err) {
			return domain.MarkTransient(err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if IsSerializationFailure(err) {
			return domain.MarkTransient(err)
		}
		return err
	}
	return nil
}

func (r *Repository) HasTicket(ctx context.Context, eventID, actorID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM tickets WHERE event_id = $1 AND actor_id = $2)
	`, eventID, actorID).Scan(&exists)
	return exists, err
}

// CounterValue reads the aggregate counter. A missing row means no one has
// ever reserved, which reads as zero.
func (r *Repository) CounterValue(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE((SELECT registration_count FROM event_counters WHERE event_id = $1), 0)
	`, eventID).Scan(&count)
	return count, err
}

// CountTickets is the fresh scan used by reconciliation, never by Count.
func (r *Repository) CountTickets(ctx context.Context, eventID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM tickets WHERE event_id = $1
	`, eventID).Scan(&count)
	return count, err
}

func (r *Repository) ActorTicketCount(ctx context.Context, eventID, actorID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM tickets WHERE event_id = $1 AND actor_id = $2
	`, eventID, actorID).Scan(&count)
	return count, err
}

func (r *Repository) TicketActors(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT actor_id FROM tickets WHERE event_id = $1
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actors []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		actors = append(actors, id)
	}
	return actors, rows.Err()
}

// CheckInByQR marks the event's ticket carrying the payload as checked in.
// Repeating the call keeps the original check-in time.
func (r *Repository) CheckInByQR(ctx context.Context, eventID uuid.UUID, qrPayload string) (domain.Ticket, error) {
	var t domain.Ticket
	err := r.pool.QueryRow(ctx, `
		UPDATE tickets
		SET checked_in = true, checked_in_at = COALESCE(checked_in_at, now())
		WHERE event_id = $1 AND qr_payload = $2
		RETURNING id, event_id, actor_id, created_at, checked_in, checked_in_at, qr_payload
	`, eventID, qrPayload).Scan(&t.ID, &t.EventID, &t.ActorID, &t.CreatedAt, &t.CheckedIn, &t.CheckedInAt, &t.QRPayload)
	if err == pgx.ErrNoRows {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, err
	}
	return t, nil
}

func (r *Repository) Attendance(ctx context.Context, eventID uuid.UUID) (domain.Attendance, error) {
	att := domain.Attendance{EventID: eventID}
	err := r.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE checked_in)
		FROM tickets WHERE event_id = $1
	`, eventID).Scan(&att.Total, &att.CheckedIn)
	return att, err
}

// CounterEvents lists every event that has a counter row, for the reconciler
// sweep.
func (r *Repository) CounterEvents(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT event_id FROM event_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		events = append(events, id)
	}
	return events, rows.Err()
}
