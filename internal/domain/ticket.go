package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ticket is the durable registration record for one actor at one event.
// At most one ticket exists per (event, actor) pair; the storage layer
// enforces this with a unique constraint.
type Ticket struct {
	ID          uuid.UUID
	EventID     uuid.UUID
	ActorID     uuid.UUID
	CreatedAt   time.Time
	CheckedIn   bool
	CheckedInAt *time.Time
	QRPayload   string
}

func NewTicket(eventID, actorID uuid.UUID) Ticket {
	now := time.Now().UTC()
	return Ticket{
		ID:        uuid.New(),
		EventID:   eventID,
		ActorID:   actorID,
		CreatedAt: now,
		QRPayload: QRPayload(eventID, actorID, now),
	}
}

// QRPayload derives the presentable check-in code. It is opaque to callers
// and never used as an identity key.
func QRPayload(eventID, actorID uuid.UUID, createdAt time.Time) string {
	return fmt.Sprintf("QR_%s_%s_%d", eventID, actorID, createdAt.UnixMilli())
}
