// Package hint defines the client reconciliation cache contract: a short-TTL
// memo that an actor just joined an event, used by UI callers to mask
// replication lag. It is a display hint only; HasReservation on the engine is
// the authority, and the engine works identically when the hint is absent or
// stale.
package hint

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Valid is the expiry rule. An entry older than ttl is absent, never a
// confirmation.
func Valid(recordedAt, now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	age := now.Sub(recordedAt)
	return age >= 0 && age < ttl
}

// Store is implemented by the Redis adapter. Callers at the HTTP edge write
// it after a successful reserve and clear it on cancel; nothing inside the
// engine reads it.
type Store interface {
	MarkJoined(ctx context.Context, actorID, eventID uuid.UUID) error
	RecentlyJoined(ctx context.Context, actorID, eventID uuid.UUID) (bool, error)
	Clear(ctx context.Context, actorID, eventID uuid.UUID) error
}
