// Package metrics exposes Prometheus collectors for the bus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgbus_events_published_total",
		Help: "Total number of events appended to the event log",
	}, []string{"name"})

	PublishErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgbus_publish_errors_total",
		Help: "Total number of publish calls that failed to append",
	})

	DeliveryAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "msgbus_delivery_attempts_total",
		Help: "Delivery attempts by outcome",
	}, []string{"outcome"}) // outcome=delivered|rejected|failed|abandoned

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "msgbus_delivery_duration_seconds",
		Help:    "Time spent on a single delivery attempt",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	DeliveriesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msgbus_deliveries_in_flight",
		Help: "Delivery attempts currently running",
	})

	CountUpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "msgbus_delivered_count_update_errors_total",
		Help: "Total number of failed delivered_count writes",
	})

	Subscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "msgbus_subscriptions",
		Help: "Current number of (name, endpoint) subscriptions",
	})
)

// Delivery outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// ObserveDelivery records one finished attempt.
func ObserveDelivery(outcome string, elapsed time.Duration) {
	if outcome == "" {
		outcome = OutcomeFailed
	}
	DeliveryAttemptsTotal.WithLabelValues(outcome).Inc()
	DeliveryDuration.Observe(elapsed.Seconds())
}

// IncPublished records an appended event.
func IncPublished(name string) {
	EventsPublishedTotal.WithLabelValues(name).Inc()
}

// SetSubscriptions updates the subscription gauge.
func SetSubscriptions(n int) {
	Subscriptions.Set(float64(n))
}
