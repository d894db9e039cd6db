package messaging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warroom"

var (
	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "messages_total",
			Help:      "Total messages sent between agents",
		},
		[]string{"type", "priority"},
	)

	collaborationsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messaging",
			Name:      "collaborations_total",
			Help:      "Total collaboration sessions started",
		},
	)
)

// recordMessageSent records a sent message metric.
func recordMessageSent(messageType, priority string) {
	messagesSent.WithLabelValues(messageType, priority).Inc()
}

// recordCollaborationStarted records a started collaboration metric.
func recordCollaborationStarted() {
	collaborationsStarted.Inc()
}
