package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EmbeddingCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_embedding_calls_total",
			Help: "Embedding backend calls by backend and HTTP status.",
		},
		[]string{"backend", "status"},
	)

	EmbeddingRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ragflow_embedding_retries_total",
			Help: "Embedding retries after a retryable failure.",
		},
	)

	EmbeddingExhausted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ragflow_embedding_exhausted_total",
			Help: "Items left with an empty vector after all retries.",
		},
	)

	LimiterWaits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ragflow_limiter_waits_total",
			Help: "Times a caller slept waiting for the embedding rate window.",
		},
	)

	NodeExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_node_executions_total",
			Help: "Workflow node executions by node and outcome.",
		},
		[]string{"node", "outcome"},
	)

	NodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ragflow_node_duration_seconds",
			Help:    "Workflow node latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"node"},
	)

	ToolResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_tool_results_total",
			Help: "Tool call results by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	CheckpointFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ragflow_checkpoint_failures_total",
			Help: "Checkpoint writes that failed.",
		},
	)

	MemoryWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ragflow_memory_writes_total",
			Help: "Long-term memory writes by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		EmbeddingCalls,
		EmbeddingRetries,
		EmbeddingExhausted,
		LimiterWaits,
		NodeExecutions,
		NodeDuration,
		ToolResults,
		CheckpointFailures,
		MemoryWrites,
	)
}

// Handler 指标暴露接口
func Handler() http.Handler {
	return promhttp.Handler()
}
