// Package metrics defines the Prometheus metric collectors used across the
// retrieval pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	FitDuration        prometheus.Histogram
	DocsFittedTotal    prometheus.Counter
	QueriesTotal       *prometheus.CounterVec
	QueryLatency       *prometheus.HistogramVec
	KNNLatency         prometheus.Histogram
	FusionResultsCount prometheus.Histogram
	ParityChecksTotal  *prometheus.CounterVec
	PosteriorWidth     prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter
	AuditPublishTotal  *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		FitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engine_fit_duration_seconds",
				Help:    "Time to fit lexical models and populate the vector index.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		DocsFittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "engine_docs_fitted_total",
				Help: "Total evidence chunks consumed by fit.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_queries_total",
				Help: "Total retrieval queries by result type (ok, zero_result, error).",
			},
			[]string{"result_type"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_query_latency_seconds",
				Help:    "End-to-end retrieval latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"cache_status"},
		),
		KNNLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engine_knn_latency_seconds",
				Help:    "Vector index KNN lookup latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),
		FusionResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engine_fusion_results_count",
				Help:    "Number of fused results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		ParityChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_parity_checks_total",
				Help: "Parity checks by verdict (PASS, FAIL).",
			},
			[]string{"verdict"},
		),
		PosteriorWidth: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "confidence_interval_width",
				Help:    "Width of the 95% credible interval per posterior estimate.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 0.75, 1},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ranking_cache_hits_total",
				Help: "Total ranking cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ranking_cache_misses_total",
				Help: "Total ranking cache misses.",
			},
		),
		AuditPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "audit_publish_total",
				Help: "Audit events published to Kafka by status.",
			},
			[]string{"status"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_errors_total",
				Help: "Errors surfaced at component boundaries, by taxonomy label.",
			},
			[]string{"label"},
		),
	}

	prometheus.MustRegister(
		m.FitDuration,
		m.DocsFittedTotal,
		m.QueriesTotal,
		m.QueryLatency,
		m.KNNLatency,
		m.FusionResultsCount,
		m.ParityChecksTotal,
		m.PosteriorWidth,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.AuditPublishTotal,
		m.ErrorsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
