// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlance",
		Name:      "commands_total",
		Help:      "Commands processed, by terminal status and resolution source.",
	}, []string{"status", "source"})

	metricCommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "parlance",
		Name:      "command_duration_seconds",
		Help:      "End-to-end command processing time.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"action"})

	metricParseFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlance",
		Name:      "parse_fallbacks_total",
		Help:      "Commands that missed every pattern rule and went to the AI parser.",
	})

	metricSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlance",
		Name:      "steps_total",
		Help:      "Progress steps emitted by action handlers, by status.",
	}, []string{"status"})

	metricAuditFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "parlance",
		Name:      "audit_failures_total",
		Help:      "Command transcripts the audit recorder failed to persist.",
	})

	metricStreamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "parlance",
		Name:      "stream_clients_active",
		Help:      "Currently connected event-stream clients.",
	})

	metricParserRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "parlance",
		Name:      "parser_requests_total",
		Help:      "Structured-parse calls to the model provider, by outcome.",
	}, []string{"outcome"})
)

// ObserveCommand records one finished command.
func ObserveCommand(action, status, source string, elapsed time.Duration) {
	if action == "" {
		action = "unresolved"
	}
	metricCommands.WithLabelValues(status, source).Inc()
	metricCommandDuration.WithLabelValues(action).Observe(elapsed.Seconds())
}

// ObserveStep records one progress step by status.
func ObserveStep(status string) {
	metricSteps.WithLabelValues(status).Inc()
}

// ParseFallback counts a pattern miss that reached the AI stage.
func ParseFallback() { metricParseFallbacks.Inc() }

// AuditFailure counts a swallowed audit persistence error.
func AuditFailure() { metricAuditFailures.Inc() }

// StreamClientConnected adjusts the live-client gauge.
func StreamClientConnected()    { metricStreamClients.Inc() }
func StreamClientDisconnected() { metricStreamClients.Dec() }

// ParserRequest records a parser call outcome: match, no_match, or error.
func ParserRequest(outcome string) {
	metricParserRequests.WithLabelValues(outcome).Inc()
}
