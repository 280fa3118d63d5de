package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsvp_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rsvp_reservations_total",
			Help: "Reserve outcomes by result",
		},
		[]string{"result"},
	)

	ReserveFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rsvp_reserve_fallback_total",
			Help: "Reserves that went through the fallback transaction",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rsvp_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	FeedDeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rsvp_feed_deliveries_total",
			Help: "Counter values delivered to feed subscribers",
		},
	)

	CounterDriftRepaired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rsvp_counter_drift_repaired_total",
			Help: "Reconciliation passes that rewrote a drifted counter",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rsvp_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rsvp_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
