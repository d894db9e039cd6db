package broadcast

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warroom"

var (
	broadcastSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Number of attached realtime subscribers",
		},
	)

	broadcastEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "events_published_total",
			Help:      "Total events published by kind",
		},
		[]string{"kind"},
	)

	broadcastDroppedSubscribers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "dropped_subscribers_total",
			Help:      "Total subscribers dropped for not keeping up with events",
		},
	)
)

// recordSubscribers updates the attached subscriber gauge.
func recordSubscribers(count int) {
	broadcastSubscribers.Set(float64(count))
}

// recordEventPublished records a published event metric.
func recordEventPublished(kind string) {
	broadcastEventsPublished.WithLabelValues(kind).Inc()
}

// recordDroppedSubscriber records a dropped subscriber metric.
func recordDroppedSubscriber() {
	broadcastDroppedSubscribers.Inc()
}
