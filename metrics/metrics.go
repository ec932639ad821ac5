package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receptionist_calls_started_total",
			Help: "Total number of calls answered",
		},
		[]string{"tenant", "channel"},
	)

	CallsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receptionist_calls_completed_total",
			Help: "Total number of calls that finished post-call processing",
		},
		[]string{"tenant"},
	)

	CallSetupFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receptionist_call_setup_failed_total",
			Help: "Total number of calls aborted before the assistant answered",
		},
		[]string{"reason"},
	)

	CallsByCategory = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receptionist_calls_by_category_total",
			Help: "Total number of processed calls by extracted category",
		},
		[]string{"tenant", "category"},
	)

	LeadsCaptured = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receptionist_leads_total",
			Help: "Total number of calls where the assistant captured a lead, by category",
		},
		[]string{"tenant", "category"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receptionist_notifications_sent_total",
			Help: "Total number of owner notifications delivered",
		},
		[]string{"channel"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receptionist_notifications_failed_total",
			Help: "Total number of owner notifications that could not be delivered",
		},
		[]string{"channel"},
	)

	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "receptionist_pipeline_stage_duration_seconds",
			Help:    "Duration of post-call pipeline stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"stage"},
	)

	PipelineStageFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receptionist_pipeline_stage_failed_total",
			Help: "Total number of post-call stages that fell back",
		},
		[]string{"stage"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "receptionist_active_sessions",
			Help: "Number of live call sessions",
		},
	)
)
