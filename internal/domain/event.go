package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusPublished EventStatus = "published"
	EventStatusCancelled EventStatus = "cancelled"
	EventStatusRejected  EventStatus = "rejected"
)

// Event is the catalog subsystem's view of an event, consumed read-only.
// Capacity 0 means unlimited.
type Event struct {
	ID       uuid.UUID
	Capacity int
	StartsAt time.Time
	Status   EventStatus
}

// Reservable reports whether the event accepts reservations at the given
// instant and, if not, which precondition failed.
func (e Event) Reservable(now time.Time) error {
	if e.Status != EventStatusPublished {
		return ErrEventNotAvailable
	}
	if !e.StartsAt.After(now) {
		return ErrEventClosed
	}
	return nil
}
