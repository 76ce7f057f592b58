package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "floodqa"

// Metrics holds the Prometheus counters and histograms for the ask pipeline.
type Metrics struct {
	AskRequests   *prometheus.CounterVec   // labels: outcome={ok,input_ambiguous,upstream_unavailable,...}
	StageDuration *prometheus.HistogramVec // labels: stage={interpret,retrieve,filter,generate}
	Degradations  *prometheus.CounterVec   // labels: field
	LLMCalls      *prometheus.CounterVec   // labels: purpose, outcome={success,error,malformed}
	PipelineReady prometheus.Gauge

	// SVI filtering.
	SVIVariablesKept    prometheus.Counter
	SVIVariablesDropped prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}

	EmbeddingCache *prometheus.CounterVec // labels: tier={memory,disk}, result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		AskRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ask_requests_total",
			Help:      "Processed questions by outcome kind.",
		}, []string{"outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"stage"}),
		Degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degradations_total",
			Help:      "Non-essential lookups that failed and were omitted, by field.",
		}, []string{"field"}),
		LLMCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_calls_total",
			Help:      "Language model calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		PipelineReady: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_ready",
			Help:      "1 when the spatial store answered the last readiness check.",
		}),
		SVIVariablesKept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "svi_variables_kept_total",
			Help:      "SVI variables that passed the relevance threshold.",
		}),
		SVIVariablesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "svi_variables_dropped_total",
			Help:      "SVI variables that fell below the relevance threshold.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		EmbeddingCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by tier and result.",
		}, []string{"tier", "result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.AskRequests,
		m.StageDuration,
		m.Degradations,
		m.LLMCalls,
		m.PipelineReady,
		m.SVIVariablesKept,
		m.SVIVariablesDropped,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.EmbeddingCache,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
