package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "warroom"

var (
	pipelineIncidentsTriggered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "incidents_triggered_total",
			Help:      "Total incidents triggered by category",
		},
		[]string{"category"},
	)

	pipelineIncidentsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "incidents_completed_total",
			Help:      "Total incidents finished by final status",
		},
		[]string{"status"},
	)

	pipelineActiveIncidents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "active_incidents",
			Help:      "Number of incidents currently in flight",
		},
	)

	pipelineStageExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_executions_total",
			Help:      "Total stage executions by stage and result",
		},
		[]string{"stage", "result"},
	)

	pipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage execution duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	pipelineWorkflowDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "workflow_duration_seconds",
			Help:      "End-to-end workflow duration in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 15, 30, 60, 120, 300},
		},
	)
)

// recordIncidentTriggered records a triggered incident metric.
func recordIncidentTriggered(category string) {
	pipelineIncidentsTriggered.WithLabelValues(category).Inc()
}

// recordIncidentCompleted records a finished incident metric.
func recordIncidentCompleted(status string) {
	pipelineIncidentsCompleted.WithLabelValues(status).Inc()
}

// recordActiveIncidents updates the in-flight incident gauge.
func recordActiveIncidents(count int) {
	pipelineActiveIncidents.Set(float64(count))
}

// recordStageExecution records a stage execution metric.
func recordStageExecution(stage, result string) {
	pipelineStageExecutions.WithLabelValues(stage, result).Inc()
}

// observeStageDuration records how long a stage execution took.
func observeStageDuration(stage string, d time.Duration) {
	pipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// observeWorkflowDuration records how long a full workflow took.
func observeWorkflowDuration(d time.Duration) {
	pipelineWorkflowDuration.Observe(d.Seconds())
}
