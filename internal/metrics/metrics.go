// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lark_agent_tasks_total",
			Help: "Total number of orchestrated tasks by verdict and outcome",
		},
		[]string{"verdict", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lark_agent_task_duration_seconds",
			Help:    "Duration of orchestrated tasks in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
		},
		[]string{"source"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lark_agent_tool_calls_total",
			Help: "Total number of model-issued tool calls by outcome",
		},
		[]string{"tool", "outcome"},
	)

	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lark_agent_dispatch_total",
			Help: "Total number of dispatched commands by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	WebhookUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lark_agent_webhook_updates_total",
			Help: "Total number of inbound webhook updates by outcome",
		},
		[]string{"outcome"},
	)

	WebhookQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lark_agent_webhook_queue_depth",
			Help: "Number of webhook jobs waiting for a worker",
		},
	)
)
