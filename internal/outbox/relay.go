// Package outbox drains committed counter rows to RabbitMQ for consumers
// outside this service. Rows are written in the same transaction as the
// counter change, so the feed can lag but never invent or lose a commit.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/squadevents/rsvp-engine/internal/adapters/crdb"
	"github.com/squadevents/rsvp-engine/internal/adapters/rabbit"
	"github.com/squadevents/rsvp-engine/internal/observability"
)

type Relay struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewRelay(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Relay {
	return &Relay{repo: repo, rabbitPub: rabbitPub, logger: logger}
}

func (r *Relay) Run(ctx context.Context, interval time.Duration, batch int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.drain(ctx, batch); err != nil {
				r.logger.Error("outbox drain failed", err)
			}
		}
	}
}

func (r *Relay) drain(ctx context.Context, batch int) error {
	records, err := r.repo.GetUnpublishedOutbox(ctx, batch)
	if err != nil {
		return err
	}
	for _, rec := range records {
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := r.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			r.logger.Error("rabbit publish failed, row stays NEW", err)
			continue
		}
		if err := r.repo.MarkPublished(ctx, rec.ID, time.Now().UTC()); err != nil {
			// The row republishes next pass; consumers dedupe on MessageId.
			r.logger.Error("failed to mark outbox row published", err)
		}
	}
	return nil
}
