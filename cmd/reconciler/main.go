package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/squadevents/rsvp-engine/internal/adapters/crdb"
	mongoadapter "github.com/squadevents/rsvp-engine/internal/adapters/mongo"
	"github.com/squadevents/rsvp-engine/internal/adapters/rabbit"
	redisadapter "github.com/squadevents/rsvp-engine/internal/adapters/redis"
	"github.com/squadevents/rsvp-engine/internal/config"
	"github.com/squadevents/rsvp-engine/internal/feed"
	"github.com/squadevents/rsvp-engine/internal/observability"
	"github.com/squadevents/rsvp-engine/internal/reconcile"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const sweepConcurrency = 8

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	attendees := mongoadapter.NewAttendeeProjection(mongoClient.Database("squadevents"), logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	feedBus := redisadapter.NewFeedBus(redisClient, logger)
	// Repairs publish through the bus only; this process has no local
	// subscribers.
	fanout := &feed.Fanout{Local: feed.NewPublisher(logger), Bus: feedBus, Logger: logger}

	checker := reconcile.NewChecker(repo, attendees, fanout, logger)
	worker := NewReconcileWorker(checker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.ReconcileInterval)

	// Counter change events trigger a targeted verify ahead of the next sweep.
	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, "rsvp.reconciler")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	go worker.ConsumeCounterEvents(ctx, consumer)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown reconciler")
}

type ReconcileWorker struct {
	checker *reconcile.Checker
	logger  observability.Logger
}

func NewReconcileWorker(checker *reconcile.Checker, logger observability.Logger) *ReconcileWorker {
	return &ReconcileWorker{checker: checker, logger: logger}
}

func (w *ReconcileWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.checker.Sweep(ctx, sweepConcurrency); err != nil {
				w.logger.Error("reconcile sweep failed", err)
			}
		}
	}
}

// ConsumeCounterEvents verifies an event as soon as a counter change for it
// lands on the broker, instead of waiting for the periodic sweep.
func (w *ReconcileWorker) ConsumeCounterEvents(ctx context.Context, consumer *rabbit.Consumer) {
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		w.logger.Error("failed to start consuming", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			var payload struct {
				EventID string `json:"event_id"`
			}
			if err := json.Unmarshal(d.Body, &payload); err != nil {
				w.logger.Warn("dropping malformed counter event", err)
				d.Nack(false, false)
				continue
			}
			eventID, err := uuid.Parse(payload.EventID)
			if err != nil {
				d.Nack(false, false)
				continue
			}
			if err := w.checker.CheckEvent(ctx, eventID); err != nil {
				w.logger.WithField("event_id", eventID).WithError(err).Error("event check failed")
			}
			d.Ack(false)
		}
	}
}
