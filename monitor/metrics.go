// Package monitor exposes Prometheus metrics for the relay path.
package monitor

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	relaymodel "github.com/NodeNestor/CodeGate/relay/model"
)

var (
	relayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codegate",
		Subsystem: "relay",
		Name:      "requests_total",
		Help:      "Proxied requests by provider, account and upstream status.",
	}, []string{"provider", "account", "code"})

	relayDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codegate",
		Subsystem: "relay",
		Name:      "request_duration_seconds",
		Help:      "End-to-end relay latency including streaming.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"provider"})

	relayTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codegate",
		Subsystem: "relay",
		Name:      "tokens_total",
		Help:      "Tokens relayed, split by direction.",
	}, []string{"provider", "direction"})

	failovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codegate",
		Subsystem: "relay",
		Name:      "failovers_total",
		Help:      "Candidate failovers by reason.",
	}, []string{"reason"})

	guardrailDetections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codegate",
		Subsystem: "guardrail",
		Name:      "detections_total",
		Help:      "Sensitive values replaced, by request lifecycle stage.",
	}, []string{"stage"})
)

// RecordRelay observes one completed upstream attempt.
func RecordRelay(provider, account string, status int, elapsed time.Duration) {
	relayRequests.WithLabelValues(provider, account, strconv.Itoa(status)).Inc()
	relayDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordTokens adds the request's token counts.
func RecordTokens(provider string, usage relaymodel.Usage) {
	if usage.PromptTokens > 0 {
		relayTokens.WithLabelValues(provider, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		relayTokens.WithLabelValues(provider, "completion").Add(float64(usage.CompletionTokens))
	}
}

// RecordFailover counts a candidate being skipped for the next one.
func RecordFailover(reason string) {
	failovers.WithLabelValues(reason).Inc()
}

// RecordGuardrailDetections counts replaced values for one request stage.
func RecordGuardrailDetections(stage string, n int) {
	if n > 0 {
		guardrailDetections.WithLabelValues(stage).Add(float64(n))
	}
}
