package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/squadevents/rsvp-engine/internal/domain"
	"github.com/squadevents/rsvp-engine/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository reads the events collection owned by the catalog
// subsystem. This service never writes to it.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID       string    `bson:"_id"`
	Name     string    `bson:"name"`
	Capacity int       `bson:"capacity"`
	StartsAt time.Time `bson:"starts_at"`
	Status   string    `bson:"status"`
}

// GetEvent returns the reservation-relevant view of an event. A missing
// document reads as domain.ErrEventNotAvailable, same as an unpublished one
// would later.
func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var doc EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return domain.Event{}, domain.ErrEventNotAvailable
	}
	if err != nil {
		c.logger.Error("failed to get event", err)
		return domain.Event{}, err
	}
	return domain.Event{
		ID:       id,
		Capacity: doc.Capacity,
		StartsAt: doc.StartsAt,
		Status:   domain.EventStatus(doc.Status),
	}, nil
}
