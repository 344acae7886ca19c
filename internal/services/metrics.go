package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"aitwin/internal/models"
)

// Metrics holds all custom Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Chat metrics
	ChatRequests       *prometheus.CounterVec
	ChatRequestLatency prometheus.Histogram
	ChatErrors         *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Reasoning loop metrics
	ToolCalls        *prometheus.CounterVec
	BackendFallbacks *prometheus.CounterVec
}

// NewMetrics registers the application metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Chat requests by intent and served backend
		ChatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aitwin_chat_requests_total",
			Help: "Total number of chat requests processed",
		}, []string{"intent", "used_model"}),

		// Chat request latency histogram
		ChatRequestLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aitwin_chat_request_duration_seconds",
			Help:    "Chat request latency in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}, // up to 2 minutes for LLM responses
		}),

		// Chat errors by type
		ChatErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aitwin_chat_errors_total",
			Help: "Total number of chat errors by type",
		}, []string{"error_type"}),

		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aitwin_response_cache_lookups_total",
			Help: "Response cache lookups by intent and result",
		}, []string{"intent", "result"}), // result: "hit" or "miss"

		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aitwin_tool_calls_total",
			Help: "Tool invocations by tool name and outcome",
		}, []string{"tool", "outcome"}),

		BackendFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "aitwin_backend_fallbacks_total",
			Help: "Reasoning turns that fell back to the secondary backend",
		}, []string{"from"}),
	}

	// every intent shows up in /metrics from the start, even at zero
	for _, intent := range models.AllIntents {
		m.CacheLookups.WithLabelValues(intent.String(), "hit")
		m.CacheLookups.WithLabelValues(intent.String(), "miss")
	}
	return m
}

// RecordChatRequest records a handled chat request
func (m *Metrics) RecordChatRequest(intent models.Intent, usedModel string) {
	if m == nil {
		return
	}
	m.ChatRequests.WithLabelValues(string(intent), usedModel).Inc()
}

// RecordChatLatency records chat request latency
func (m *Metrics) RecordChatLatency(seconds float64) {
	if m == nil {
		return
	}
	m.ChatRequestLatency.Observe(seconds)
}

// RecordChatError records a chat error
func (m *Metrics) RecordChatError(errorType string) {
	if m == nil {
		return
	}
	m.ChatErrors.WithLabelValues(errorType).Inc()
}

// RecordCacheHit records a response cache hit
func (m *Metrics) RecordCacheHit(intent models.Intent) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(string(intent), "hit").Inc()
}

// RecordCacheMiss records a response cache miss
func (m *Metrics) RecordCacheMiss(intent models.Intent) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(string(intent), "miss").Inc()
}

// RecordToolCall records one tool invocation
func (m *Metrics) RecordToolCall(tool string, failed bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// RecordFallback records a switch from a backend to the fallback backend
func (m *Metrics) RecordFallback(from string) {
	if m == nil {
		return
	}
	m.BackendFallbacks.WithLabelValues(from).Inc()
}
