package metrics

import "github.com/prometheus/client_golang/prometheus"

// Pipeline Prometheus metrics: retrieval, caching, routing, inference,
// and the answer contract.
var (
	EvidenceCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "evidence_cache_total",
			Help:      "Evidence pack cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"model", "status"},
	)

	RetrievalDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dealbrain",
			Name:      "retrieval_duration_seconds",
			Help:      "Hybrid retrieval duration in seconds",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	RetrievalDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "retrieval_degraded_total",
			Help:      "Retrievals that degraded instead of failing",
		},
		[]string{"stage"}, // "embedding" / "vector" / "lexical"
	)

	TierDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "tier_decisions_total",
			Help:      "Confidence router tier decisions",
		},
		[]string{"tier", "reason"},
	)

	EscalationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "escalations_total",
			Help:      "Post-answer escalations from fast to deep tier",
		},
	)

	InferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "inference_requests_total",
			Help:      "Total number of inference requests",
		},
		[]string{"tier", "model", "status"},
	)

	InferenceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dealbrain",
			Name:      "inference_request_duration_seconds",
			Help:      "Inference request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 90},
		},
		[]string{"tier", "model"},
	)

	ContractRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "contract_retries_total",
			Help:      "Single-shot schema repair regenerations",
		},
	)

	ContractViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "contract_violations_total",
			Help:      "Terminal contract violations after the repair attempt",
		},
	)

	LineageWriteFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dealbrain",
			Name:      "lineage_write_failures_total",
			Help:      "Lineage records dropped due to storage errors",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(EvidenceCacheTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(RetrievalDuration)
	prometheus.MustRegister(RetrievalDegradedTotal)
	prometheus.MustRegister(TierDecisionsTotal)
	prometheus.MustRegister(EscalationsTotal)
	prometheus.MustRegister(InferenceRequestsTotal)
	prometheus.MustRegister(InferenceRequestDuration)
	prometheus.MustRegister(ContractRetriesTotal)
	prometheus.MustRegister(ContractViolationsTotal)
	prometheus.MustRegister(LineageWriteFailuresTotal)
	pipelineMetricsRegistered = true
}
