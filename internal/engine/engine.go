// Package engine implements the reservation engine: the only code path that
// mutates the ticket store and the aggregate counter together.
package engine

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/squadevents/rsvp-engine/internal/observability"
)

// Store is the durable ticket + counter store. Both reserve legs run their
// checks and writes as one atomic unit; the unique constraint on
// (event_id, actor_id) backs them both.
type Store interface {
	ReserveAtomic(ctx context.Context, t domain.Ticket, capacity int) (int, error)
	ReserveFallback(ctx context.Context, t domain.Ticket, capacity int) (int, error)
	CancelTicket(ctx context.Context, eventID, actorID uuid.UUID) (bool, int, error)
	HasTicket(ctx context.Context, eventID, actorID uuid.UUID) (bool, error)
	CounterValue(ctx context.Context, eventID uuid.UUID) (int, error)
	CheckInByQR(ctx context.Context, eventID uuid.UUID, qrPayload string) (domain.Ticket, error)
}

// Catalog looks up the event view owned by the catalog subsystem.
type Catalog interface {
	GetEvent(ctx context.Context, eventID uuid.UUID) (domain.Event, error)
}

// Projection is the denormalized attendee view kept alongside the ticket
// store. Writes happen after commit and are repaired by the reconciler, so a
// failure here never rolls back a reservation.
type Projection interface {
	AddAttendee(ctx context.Context, eventID, actorID uuid.UUID, joinedAt time.Time) error
	RemoveAttendee(ctx context.Context, eventID, actorID uuid.UUID) error
}

// Notifier receives the new registration count after every committed change.
type Notifier interface {
	NotifyCount(ctx context.Context, eventID uuid.UUID, count int)
}

type Engine struct {
	store      Store
	catalog    Catalog
	projection Projection
	notifier   Notifier
	logger     observability.Logger
}

func New(store Store, catalog Catalog, projection Projection, notifier Notifier, logger observability.Logger) *Engine {
	return &Engine{
		store:      store,
		catalog:    catalog,
		projection: projection,
		notifier:   notifier,
		logger:     logger,
	}
}

// Reserve creates the actor's ticket for the event. Preconditions are checked
// in order: event published, start time in the future, no existing ticket,
// capacity. The last two run inside the store's atomic unit together with the
// insert and the counter increment; see ladder.go for the mechanism order.
func (e *Engine) Reserve(ctx context.Context, eventID, actorID uuid.UUID) (domain.Ticket, error) {
	ev, err := e.catalog.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotAvailable) {
			observability.ReservationsTotal.WithLabelValues("not_available").Inc()
			return domain.Ticket{}, err
		}
		return domain.Ticket{}, domain.MarkTransient(err)
	}
	if err := ev.Reservable(time.Now().UTC()); err != nil {
		observability.ReservationsTotal.WithLabelValues(resultLabel(err)).Inc()
		return domain.Ticket{}, err
	}

	t := domain.NewTicket(eventID, actorID)
	count, err := runReserveLadder(ctx, e.store, t, ev.Capacity)
	if err != nil {
		observability.ReservationsTotal.WithLabelValues(resultLabel(err)).Inc()
		return domain.Ticket{}, err
	}
	observability.ReservationsTotal.WithLabelValues("ok").Inc()

	// Post-commit side effects only. Nothing below holds a lock or can undo
	// the reservation.
	if e.notifier != nil {
		e.notifier.NotifyCount(ctx, eventID, count)
	}
	if e.projection != nil {
		if err := e.projection.AddAttendee(ctx, eventID, actorID, t.CreatedAt); err != nil {
			e.logger.WithField("event_id", eventID).WithError(err).Warn("attendee projection write failed, reconciler will repair")
		}
	}
	return t, nil
}

// Cancel removes the pair's ticket and decrements the counter. Absence is
// success: cancelling twice is the same as cancelling once.
func (e *Engine) Cancel(ctx context.Context, eventID, actorID uuid.UUID) error {
	deleted, count, err := e.store.CancelTicket(ctx, eventID, actorID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}

	if e.projection != nil {
		if err := e.projection.RemoveAttendee(ctx, eventID, actorID); err != nil {
			e.logger.WithField("event_id", eventID).WithError(err).Warn("attendee projection cleanup failed, reconciler will repair")
		}
	}
	if e.notifier != nil {
		e.notifier.NotifyCount(ctx, eventID, count)
	}
	return nil
}

// HasReservation answers from the durable store, never from a client hint.
func (e *Engine) HasReservation(ctx context.Context, eventID, actorID uuid.UUID) (bool, error) {
	return e.store.HasTicket(ctx, eventID, actorID)
}

// Count returns the aggregate counter, not a live scan. Callers that need a
// guaranteed-fresh value go through the reconciliation checker.
func (e *Engine) Count(ctx context.Context, eventID uuid.UUID) (int, error) {
	return e.store.CounterValue(ctx, eventID)
}

// CheckIn resolves the presented code to the event's ticket and marks it
// checked in. Check-in never touches the counter.
func (e *Engine) CheckIn(ctx context.Context, eventID uuid.UUID, qrPayload string) (domain.Ticket, error) {
	return e.store.CheckInByQR(ctx, eventID, qrPayload)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrAlreadyReserved):
		return "duplicate"
	case errors.Is(err, domain.ErrEventFull):
		return "full"
	case errors.Is(err, domain.ErrEventNotAvailable):
		return "not_available"
	case errors.Is(err, domain.ErrEventClosed):
		return "closed"
	case errors.Is(err, domain.ErrTransient):
		return "transient"
	default:
		return "error"
	}
}
