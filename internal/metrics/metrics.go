package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "konnect_reservations_total",
		Help: "Reservation attempts by result.",
	}, []string{"result"})

	ReleasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "konnect_releases_total",
		Help: "Reservation releases by result.",
	}, []string{"result"})

	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "konnect_payments_total",
		Help: "Payment attempts by terminal status.",
	}, []string{"status"})

	TokenRefreshTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "konnect_provider_token_refresh_total",
		Help: "Provider credential fetches.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "konnect_events_dropped_total",
		Help: "Lifecycle events dropped because the queue was full.",
	})

	ReapedReservations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "konnect_reaped_reservations_total",
		Help: "Pending reservations auto-released after the expiry window.",
	})
)

// RegisterQueueDepth exposes the event queue backlog as a gauge.
func RegisterQueueDepth(depth func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "konnect_event_queue_depth",
		Help: "Lifecycle events waiting for a broker worker.",
	}, func() float64 { return float64(depth()) })
}
