package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankerai_requests_total",
			Help: "Total number of query requests processed",
		},
		[]string{"status"},
	)

	RequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bankerai_request_duration_seconds",
			Help:    "End-to-end query request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Agent metrics
	AgentExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankerai_agent_executions_total",
			Help: "Total number of agent executions by terminal status",
		},
		[]string{"agent_id", "status"},
	)

	AgentExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bankerai_agent_execution_duration_seconds",
			Help:    "Agent execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"agent_id"},
	)

	AgentRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankerai_agent_retries_total",
			Help: "Total number of agent execution retries",
		},
		[]string{"agent_id"},
	)

	// Classification metrics
	ClassifierDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bankerai_classifier_degraded_total",
			Help: "Total number of classifications served in keyword-only degraded mode",
		},
	)

	// Embedding metrics
	embeddingRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankerai_embedding_requests_total",
			Help: "Total number of embedding lookups by outcome",
		},
		[]string{"model", "outcome"},
	)

	embeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bankerai_embedding_request_duration_seconds",
			Help:    "Embedding service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// LLM metrics
	llmRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankerai_llm_requests_total",
			Help: "Total number of completion service requests by outcome",
		},
		[]string{"model", "outcome"},
	)

	llmDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bankerai_llm_request_duration_seconds",
			Help:    "Completion service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// Vector search metrics
	vectorSearches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankerai_vector_searches_total",
			Help: "Total number of vector index searches by outcome",
		},
		[]string{"collection", "outcome"},
	)

	// Monitor sink metrics
	MonitorRecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bankerai_monitor_records_total",
			Help: "Total number of execution log records by write outcome",
		},
		[]string{"outcome"},
	)

	MonitorQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bankerai_monitor_queue_depth",
			Help: "Current depth of the async execution log write queue",
		},
	)
)

// RecordEmbeddingRequest records one embedding lookup outcome. A zero duration
// means the lookup was served from cache.
func RecordEmbeddingRequest(model, outcome string, seconds float64) {
	embeddingRequests.WithLabelValues(model, outcome).Inc()
	if seconds > 0 {
		embeddingDuration.WithLabelValues(model).Observe(seconds)
	}
}

// RecordLLMRequest records one completion service call outcome.
func RecordLLMRequest(model, outcome string, seconds float64) {
	llmRequests.WithLabelValues(model, outcome).Inc()
	if seconds > 0 {
		llmDuration.WithLabelValues(model).Observe(seconds)
	}
}

// RecordVectorSearch records one vector index search outcome.
func RecordVectorSearch(collection, outcome string) {
	vectorSearches.WithLabelValues(collection, outcome).Inc()
}
