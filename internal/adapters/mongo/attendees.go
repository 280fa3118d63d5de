package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/squadevents/rsvp-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AttendeeProjection is the denormalized "who is attending" view read by the
// friends pages. The ticket store is the source of truth; this collection is
// rewritten on reserve and cancel and repaired by the reconciler when the two
// drift.
type AttendeeProjection struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAttendeeProjection(db *mongo.Database, logger observability.Logger) *AttendeeProjection {
	return &AttendeeProjection{
		coll:   db.Collection("event_attendees"),
		logger: logger,
	}
}

type AttendeeDoc struct {
	EventID  string    `bson:"event_id"`
	ActorID  string    `bson:"actor_id"`
	JoinedAt time.Time `bson:"joined_at"`
}

func (p *AttendeeProjection) AddAttendee(ctx context.Context, eventID, actorID uuid.UUID, joinedAt time.Time) error {
	filter := bson.M{"event_id": eventID.String(), "actor_id": actorID.String()}
	update := bson.M{"$set": bson.M{"joined_at": joinedAt}}
	_, err := p.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		p.logger.Error("failed to add attendee", err)
	}
	return err
}

func (p *AttendeeProjection) RemoveAttendee(ctx context.Context, eventID, actorID uuid.UUID) error {
	_, err := p.coll.DeleteMany(ctx, bson.M{"event_id": eventID.String(), "actor_id": actorID.String()})
	if err != nil {
		p.logger.Error("failed to remove attendee", err)
	}
	return err
}

// CountForActor reports how many projection entries remain for the pair.
// Used by verification to confirm a cancellation cleaned up the mirror too.
func (p *AttendeeProjection) CountForActor(ctx context.Context, eventID, actorID uuid.UUID) (int, error) {
	n, err := p.coll.CountDocuments(ctx, bson.M{"event_id": eventID.String(), "actor_id": actorID.String()})
	return int(n), err
}

// CountForEvent reports the mirror's size for one event, compared against the
// ticket count by the reconciler to catch a mirror that fell behind.
func (p *AttendeeProjection) CountForEvent(ctx context.Context, eventID uuid.UUID) (int, error) {
	n, err := p.coll.CountDocuments(ctx, bson.M{"event_id": eventID.String()})
	return int(n), err
}

// Rewrite replaces the event's projection with the given actor set. The
// reconciler calls this with the actors read fresh from the ticket store.
func (p *AttendeeProjection) Rewrite(ctx context.Context, eventID uuid.UUID, actors []uuid.UUID) error {
	ids := make([]string, len(actors))
	for i, a := range actors {
		ids[i] = a.String()
	}

	// Drop entries with no backing ticket.
	_, err := p.coll.DeleteMany(ctx, bson.M{
		"event_id": eventID.String(),
		"actor_id": bson.M{"$nin": ids},
	})
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, id := range ids {
		filter := bson.M{"event_id": eventID.String(), "actor_id": id}
		update := bson.M{"$setOnInsert": bson.M{"joined_at": now}}
		if _, err := p.coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
			return err
		}
	}
	return nil
}
