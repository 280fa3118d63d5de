package redis

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/squadevents/rsvp-engine/internal/observability"
)

const feedChannelPrefix = "rsvp.count."

// FeedBus carries counter updates between API instances over Redis Pub/Sub so
// a subscriber attached to one instance sees commits made on another.
// Delivery is fire-and-forget; the counter row stays the source of truth.
type FeedBus struct {
	client *redis.Client
	logger observability.Logger
}

func NewFeedBus(client *redis.Client, logger observability.Logger) *FeedBus {
	return &FeedBus{client: client, logger: logger}
}

type feedMessage struct {
	EventID           string `json:"event_id"`
	RegistrationCount int    `json:"registration_count"`
}

func (b *FeedBus) Publish(ctx context.Context, eventID uuid.UUID, count int) error {
	payload, err := json.Marshal(feedMessage{EventID: eventID.String(), RegistrationCount: count})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, feedChannelPrefix+eventID.String(), payload).Err()
}

// Run blocks delivering every bus message into deliver until ctx is done.
func (b *FeedBus) Run(ctx context.Context, deliver func(eventID uuid.UUID, count int)) error {
	sub := b.client.PSubscribe(ctx, feedChannelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m feedMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.logger.Warn("dropping malformed feed message", err)
				continue
			}
			eventID, err := uuid.Parse(strings.TrimPrefix(msg.Channel, feedChannelPrefix))
			if err != nil {
				continue
			}
			deliver(eventID, m.RegistrationCount)
		}
	}
}
