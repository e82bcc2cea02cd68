package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tool dispatch metrics
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_tool_calls_total",
			Help: "Total number of tool invocations by tool, category and result",
		},
		[]string{"tool", "category", "result"},
	)

	ToolDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_tool_duration_seconds",
			Help:    "Duration of tool invocations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tool"},
	)

	// Telemetry pipeline metrics
	TelemetryEventsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcp_telemetry_events_sent_total",
			Help: "Total number of telemetry events delivered to the backend",
		},
	)

	TelemetrySendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mcp_telemetry_send_failures_total",
			Help: "Total number of failed telemetry batch sends",
		},
	)

	TelemetryCachedEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mcp_telemetry_cached_events",
			Help: "Number of telemetry events waiting in the event cache",
		},
	)

	// Session metrics
	CredentialRevocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_credential_revocations_total",
			Help: "Total number of temporary credential revocations by result",
		},
		[]string{"result"}, // success, failure
	)
)

// RecordToolCall records the outcome and latency of one tool invocation
func RecordToolCall(tool, category, result string, elapsed time.Duration) {
	ToolCallsTotal.WithLabelValues(tool, category, result).Inc()
	ToolDurationSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// RecordTelemetrySend records a telemetry batch send attempt
func RecordTelemetrySend(events int, err error) {
	if err != nil {
		TelemetrySendFailuresTotal.Inc()
		return
	}
	TelemetryEventsSentTotal.Add(float64(events))
}

// SetTelemetryCached sets the current event cache depth
func SetTelemetryCached(n int) {
	TelemetryCachedEvents.Set(float64(n))
}

// RecordCredentialRevocation records a temporary credential revocation attempt
func RecordCredentialRevocation(err error) {
	if err != nil {
		CredentialRevocationsTotal.WithLabelValues("failure").Inc()
		return
	}
	CredentialRevocationsTotal.WithLabelValues("success").Inc()
}
