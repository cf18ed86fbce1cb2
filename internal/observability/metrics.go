package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robertarktes/showtime-reservations/internal/domain"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtime_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	ReservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtime_reservations_total",
			Help: "Reservation operations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtime_bookings_total",
			Help: "Booking operations by operation and outcome",
		},
		[]string{"op", "outcome"},
	)

	ShowTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "showtime_show_tx_seconds",
			Help:    "Duration of per-show inventory transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	ShowTxRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtime_show_tx_retries_total",
			Help: "Per-show transactions retried after a serialization failure",
		},
	)

	SweepRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtime_sweep_runs_total",
			Help: "Expiry sweeper passes by outcome",
		},
		[]string{"outcome"},
	)

	SweepExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "showtime_sweep_expired_total",
			Help: "Entities transitioned to expired by the sweeper",
		},
		[]string{"kind"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "showtime_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtime_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "showtime_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)
)

// Outcome maps an operation error onto a low-cardinality label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := domain.Kind(err); k != nil {
		return k.Error()
	}
	return "error"
}
