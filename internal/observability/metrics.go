package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus collectors the runtime exports,
// covering the core's lifecycle: classification, LLM calls, tool dispatch,
// event bus drops, and task queue throughput.
type Metrics struct {
	// SignalsClassified counts classifier output by mode and whether it was
	// filtered by the noise threshold.
	SignalsClassified *prometheus.CounterVec

	// LLMRequestDuration measures provider call latency.
	// Labels: provider, model
	LLMRequestDuration *prometheus.HistogramVec

	// LLMRequestCounter counts provider calls by outcome.
	// Labels: provider, model, status (success|error)
	LLMRequestCounter *prometheus.CounterVec

	// ToolExecutionDuration measures tool dispatch latency.
	// Labels: tool
	ToolExecutionDuration *prometheus.HistogramVec

	// ToolExecutionCounter counts tool dispatch outcomes.
	// Labels: tool, status (success|error)
	ToolExecutionCounter *prometheus.CounterVec

	// EventBusDropped counts events dropped due to a full subscriber queue.
	// Labels: topic
	EventBusDropped *prometheus.CounterVec

	// ActiveSessions is a gauge of live Session Workers.
	ActiveSessions prometheus.Gauge

	// TaskQueueDepth is a gauge of pending tasks by agent.
	// Labels: agent_id
	TaskQueueDepth *prometheus.GaugeVec

	// TaskLeaseReaped counts leases reclaimed by the reaper.
	TaskLeaseReaped prometheus.Counter

	// CompactionRuns counts compaction passes by tier.
	// Labels: tier (warn|aggressive|emergency|emergency_failed)
	CompactionRuns *prometheus.CounterVec
}

// NewMetrics registers and returns the runtime's Prometheus collectors
// against the default registerer.
func NewMetrics() *Metrics {
	return &Metrics{
		SignalsClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "osa_signals_classified_total",
			Help: "Count of classified signals by mode and filtered status.",
		}, []string{"mode", "filtered"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "osa_llm_request_duration_seconds",
			Help:    "LLM provider call latency.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "model"}),
		LLMRequestCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "osa_llm_requests_total",
			Help: "LLM provider calls by outcome.",
		}, []string{"provider", "model", "status"}),
		ToolExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "osa_tool_execution_duration_seconds",
			Help:    "Tool dispatch latency.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"tool"}),
		ToolExecutionCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "osa_tool_executions_total",
			Help: "Tool dispatches by outcome.",
		}, []string{"tool", "status"}),
		EventBusDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "osa_event_bus_dropped_total",
			Help: "Events dropped because a subscriber's queue was full.",
		}, []string{"topic"}),
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "osa_active_sessions",
			Help: "Number of live Session Workers.",
		}),
		TaskQueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "osa_task_queue_depth",
			Help: "Pending tasks by agent.",
		}, []string{"agent_id"}),
		TaskLeaseReaped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "osa_task_leases_reaped_total",
			Help: "Leases reclaimed by the reaper after expiry.",
		}),
		CompactionRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "osa_compaction_runs_total",
			Help: "Compaction passes by tier.",
		}, []string{"tier"}),
	}
}
