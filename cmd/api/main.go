package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/squadevents/rsvp-engine/internal/adapters/crdb"
	mongoadapter "github.com/squadevents/rsvp-engine/internal/adapters/mongo"
	redisadapter "github.com/squadevents/rsvp-engine/internal/adapters/redis"
	"github.com/squadevents/rsvp-engine/internal/config"
	"github.com/squadevents/rsvp-engine/internal/engine"
	"github.com/squadevents/rsvp-engine/internal/feed"
	httphandler "github.com/squadevents/rsvp-engine/internal/http"
	"github.com/squadevents/rsvp-engine/internal/idempotency"
	"github.com/squadevents/rsvp-engine/internal/observability"
	"github.com/squadevents/rsvp-engine/internal/rateLimit"
	"github.com/squadevents/rsvp-engine/internal/reconcile"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

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
	if err := crdb.EnsureSchema(context.Background(), pool); err != nil {
		log.Fatalf("failed to ensure schema: %v", err)
	}
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("squadevents")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	attendees := mongoadapter.NewAttendeeProjection(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	redisCache := redisadapter.NewCache(redisClient)
	hints := redisadapter.NewHintStore(redisClient, cfg.HintTTL)
	idemp := idempotency.NewIdempotency(redisClient, time.Hour)
	rl := rateLimit.NewRateLimiter(redisCache)

	feedPub := feed.NewPublisher(logger)
	feedBus := redisadapter.NewFeedBus(redisClient, logger)
	fanout := &feed.Fanout{Local: feedPub, Bus: feedBus, Logger: logger}

	busCtx, busCancel := context.WithCancel(context.Background())
	defer busCancel()
	go func() {
		if err := feedBus.Run(busCtx, feedPub.Publish); err != nil && busCtx.Err() == nil {
			logger.Error("feed bus stopped", err)
		}
	}()

	eng := engine.New(repo, catalog, attendees, fanout, logger)
	checker := reconcile.NewChecker(repo, attendees, fanout, logger)

	handlers := httphandler.NewHandlers(cfg, eng, checker, feedPub, hints, idemp, logger)
	r := httphandler.SetupRouter(handlers, logger, rl)

	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
