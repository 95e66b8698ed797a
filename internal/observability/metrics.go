package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticketnova_reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	TicketsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketnova_tickets_issued_total",
			Help: "Tickets issued by committed reservations",
		},
	)

	TicketsReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketnova_tickets_released_total",
			Help: "Tickets released back to inventory",
		},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticketnova_db_tx_seconds",
			Help:    "Duration of reservation transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ticketnova_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	NotifyPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketnova_notify_publish_retries_total",
			Help: "Notification publish retries",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticketnova_rate_limit_exceeded_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
