package config

import (
	"time"

	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	CRDBDSN           string
	MongoURI          string
	RedisAddr         string
	RabbitURL         string
	HintTTL           time.Duration
	ReconcileInterval time.Duration
	OTLPEndpoint      string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	hintTTL, _ := time.ParseDuration(os.Getenv("HINT_TTL"))
	if hintTTL == 0 {
		hintTTL = 5 * time.Minute
	}

	reconcileInterval, _ := time.ParseDuration(os.Getenv("RECONCILE_INTERVAL"))
	if reconcileInterval == 0 {
		reconcileInterval = time.Minute
	}

	return &Config{
		CRDBDSN:           os.Getenv("CRDB_DSN"),
		MongoURI:          os.Getenv("MONGO_URI"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RabbitURL:         os.Getenv("RABBIT_URL"),
		HintTTL:           hintTTL,
		ReconcileInterval: reconcileInterval,
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}, nil
}
