// Package reconcile detects and repairs drift between the aggregate counter
// and the actual ticket set.
package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/squadevents/rsvp-engine/internal/observability"
	"golang.org/x/sync/errgroup"
)

type Store interface {
	CountTickets(ctx context.Context, eventID uuid.UUID) (int, error)
	ActorTicketCount(ctx context.Context, eventID, actorID uuid.UUID) (int, error)
	CounterValue(ctx context.Context, eventID uuid.UUID) (int, error)
	SyncCounter(ctx context.Context, eventID uuid.UUID) (int, error)
	TicketActors(ctx context.Context, eventID uuid.UUID) ([]uuid.UUID, error)
	Attendance(ctx context.Context, eventID uuid.UUID) (domain.Attendance, error)
	CounterEvents(ctx context.Context) ([]uuid.UUID, error)
}

type Projection interface {
	CountForActor(ctx context.Context, eventID, actorID uuid.UUID) (int, error)
	CountForEvent(ctx context.Context, eventID uuid.UUID) (int, error)
	Rewrite(ctx context.Context, eventID uuid.UUID, actors []uuid.UUID) error
}

type Notifier interface {
	NotifyCount(ctx context.Context, eventID uuid.UUID, count int)
}

type Checker struct {
	store      Store
	projection Projection
	notifier   Notifier
	logger     observability.Logger
}

func NewChecker(store Store, projection Projection, notifier Notifier, logger observability.Logger) *Checker {
	return &Checker{store: store, projection: projection, notifier: notifier, logger: logger}
}

// Verify compares the counter against a fresh ticket scan. OK also requires
// the actor to have no remaining ticket rows, which is what a caller checks
// right after a cancellation. Pass uuid.Nil to verify the counter alone.
func (c *Checker) Verify(ctx context.Context, eventID, actorID uuid.UUID) (domain.VerificationReport, error) {
	report := domain.VerificationReport{EventID: eventID, ActorID: actorID}

	actual, err := c.store.CountTickets(ctx, eventID)
	if err != nil {
		return report, err
	}
	counter, err := c.store.CounterValue(ctx, eventID)
	if err != nil {
		return report, err
	}
	report.ActualValue = actual
	report.CounterValue = counter

	if actorID != uuid.Nil {
		remaining, err := c.store.ActorTicketCount(ctx, eventID, actorID)
		if err != nil {
			return report, err
		}
		report.TicketsRemaining = remaining

		if c.projection != nil {
			mirrored, err := c.projection.CountForActor(ctx, eventID, actorID)
			if err != nil {
				// The mirror being unreadable is not counter drift.
				c.logger.WithField("event_id", eventID).WithError(err).Warn("projection count failed during verify")
			} else {
				report.RegistrationsRemaining = mirrored
			}
		}
	}

	report.OK = actual == counter && report.TicketsRemaining == 0
	return report, nil
}

// Sync unconditionally recomputes the counter from the ticket store. Callers
// verify first and only sync on drift to avoid useless writes; the store does
// the recount under the same lock discipline as reserve and cancel.
func (c *Checker) Sync(ctx context.Context, eventID uuid.UUID) error {
	count, err := c.store.SyncCounter(ctx, eventID)
	if err != nil {
		return err
	}
	observability.CounterDriftRepaired.Inc()
	if c.notifier != nil {
		c.notifier.NotifyCount(ctx, eventID, count)
	}
	return nil
}

// RepairProjection rewrites the attendee mirror from the ticket set.
func (c *Checker) RepairProjection(ctx context.Context, eventID uuid.UUID) error {
	if c.projection == nil {
		return nil
	}
	actors, err := c.store.TicketActors(ctx, eventID)
	if err != nil {
		return err
	}
	return c.projection.Rewrite(ctx, eventID, actors)
}

func (c *Checker) Attendance(ctx context.Context, eventID uuid.UUID) (domain.Attendance, error) {
	return c.store.Attendance(ctx, eventID)
}

// CheckEvent verifies one event and repairs whatever drifted. The counter and
// the attendee mirror drift independently: a failed post-commit projection
// write leaves the counter correct but the mirror behind, so the mirror is
// checked against the ticket count even when the counter verifies clean.
func (c *Checker) CheckEvent(ctx context.Context, eventID uuid.UUID) error {
	report, err := c.Verify(ctx, eventID, uuid.Nil)
	if err != nil {
		return err
	}

	if !report.OK {
		c.logger.WithField("event_id", eventID).
			WithField("counter", report.CounterValue).
			WithField("actual", report.ActualValue).
			Warn("counter drift detected, repairing")
		if err := c.Sync(ctx, eventID); err != nil {
			return err
		}
		return c.RepairProjection(ctx, eventID)
	}

	if c.projection == nil {
		return nil
	}
	mirrored, err := c.projection.CountForEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if mirrored != report.ActualValue {
		c.logger.WithField("event_id", eventID).
			WithField("mirrored", mirrored).
			WithField("actual", report.ActualValue).
			Warn("attendee mirror drift detected, repairing")
		return c.RepairProjection(ctx, eventID)
	}
	return nil
}

// Sweep checks every event with a counter row, repairing only where drift is
// found. Events are checked concurrently; one bad event does not stop the
// rest.
func (c *Checker) Sweep(ctx context.Context, concurrency int) error {
	events, err := c.store.CounterEvents(ctx)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, eventID := range events {
		eventID := eventID
		g.Go(func() error {
			if err := c.CheckEvent(gctx, eventID); err != nil {
				c.logger.WithField("event_id", eventID).WithError(err).Error("event check failed during sweep")
			}
			return nil
		})
	}
	return g.Wait()
}
