// Package metrics provides Prometheus instrumentation for AgentBuilder.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dialogue request statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbuilder_turns_total",
			Help: "Total number of processed conversation turns",
		},
		[]string{"stage"},
	)

	stageTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbuilder_stage_transitions_total",
			Help: "Total number of stage transitions",
		},
		[]string{"from", "to"},
	)
)

var (
	dialogueRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbuilder_dialogue_requests_total",
			Help: "Total number of dialogue provider calls",
		},
		[]string{"provider", "status"},
	)

	dialogueDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentbuilder_dialogue_duration_seconds",
			Help:    "Dialogue provider call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	dialogueFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbuilder_dialogue_fallbacks_total",
			Help: "Turns answered with the fallback clarification reply",
		},
	)
)

var (
	mergeRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentbuilder_merge_rejections_total",
			Help: "Extracted values rejected by the confidence gate",
		},
		[]string{"field"},
	)

	toolValidationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbuilder_tool_validation_failures_total",
			Help: "Extracted tool details that failed validation",
		},
	)

	workflowSynthesesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "agentbuilder_workflow_syntheses_total",
			Help: "Total number of synthesized workflows",
		},
	)
)

var httpRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "agentbuilder_http_requests_total",
		Help: "Total HTTP requests by route and status code",
	},
	[]string{"route", "code"},
)

// RecordTurn records one processed turn in the given stage.
func RecordTurn(stage string) {
	turnsTotal.WithLabelValues(stage).Inc()
}

// RecordStageTransition records a transition between two stages.
func RecordStageTransition(from, to string) {
	stageTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordDialogueCall records a dialogue provider call and its latency.
func RecordDialogueCall(provider, status string, d time.Duration) {
	dialogueRequestsTotal.WithLabelValues(provider, status).Inc()
	dialogueDurationSeconds.WithLabelValues(provider).Observe(d.Seconds())
}

// RecordDialogueFallback records a turn served by the fallback reply.
func RecordDialogueFallback() {
	dialogueFallbacksTotal.Inc()
}

// RecordMergeRejection records a gated value that did not pass the threshold.
func RecordMergeRejection(field string) {
	mergeRejectionsTotal.WithLabelValues(field).Inc()
}

// RecordToolValidationFailure records dropped tool details.
func RecordToolValidationFailure() {
	toolValidationFailuresTotal.Inc()
}

// RecordWorkflowSynthesis records one synthesized workflow.
func RecordWorkflowSynthesis() {
	workflowSynthesesTotal.Inc()
}

// RecordHTTPRequest records an HTTP response.
func RecordHTTPRequest(route, code string) {
	httpRequestsTotal.WithLabelValues(route, code).Inc()
}
