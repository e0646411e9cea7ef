package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "checkin_insights"

// Cache lookup results
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Fallback reasons
const (
	FallbackUnavailable = "model_unavailable"
	FallbackTimeout     = "inference_timeout"
	FallbackError       = "inference_error"
	FallbackPanic       = "inference_panic"
)

// Recorder holds the prediction engine's Prometheus collectors. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	predictions         *prometheus.CounterVec
	cacheLookups        *prometheus.CounterVec
	inferenceDuration   *prometheus.HistogramVec
	fallbacks           *prometheus.CounterVec
	explanationFailures *prometheus.CounterVec
	cacheWriteFailures  prometheus.Counter
}

// New creates and registers the collectors on reg. Pass
// prometheus.NewRegistry() in tests to keep them isolated.
func New(reg *prometheus.Registry) *Recorder {
	r := &Recorder{gatherer: reg}

	r.predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction results served, by type and source",
		},
		[]string{"type", "source"},
	)

	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Prediction cache lookups, by result",
		},
		[]string{"result"},
	)

	r.inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Model inference latency, by type",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15, 30},
		},
		[]string{"type"},
	)

	r.fallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_fallbacks_total",
			Help:      "Heuristic fallbacks, by type and reason",
		},
		[]string{"type", "reason"},
	)

	r.explanationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanation_failures_total",
			Help:      "Attribution computations that failed or timed out, by type",
		},
		[]string{"type"},
	)

	r.cacheWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_write_failures_total",
			Help:      "Prediction cache writes that failed",
		},
	)

	reg.MustRegister(
		r.predictions,
		r.cacheLookups,
		r.inferenceDuration,
		r.fallbacks,
		r.explanationFailures,
		r.cacheWriteFailures,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// RecordPrediction counts a served result
func (r *Recorder) RecordPrediction(predictionType, source string) {
	if r == nil {
		return
	}
	r.predictions.WithLabelValues(predictionType, source).Inc()
}

// RecordCacheLookup counts a cache hit or miss
func (r *Recorder) RecordCacheLookup(result string) {
	if r == nil {
		return
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// ObserveInference records how long a model took, including failed attempts
func (r *Recorder) ObserveInference(predictionType string, d time.Duration) {
	if r == nil {
		return
	}
	r.inferenceDuration.WithLabelValues(predictionType).Observe(d.Seconds())
}

// RecordFallback counts a heuristic fallback
func (r *Recorder) RecordFallback(predictionType, reason string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(predictionType, reason).Inc()
}

// RecordExplanationFailure counts a best-effort explanation
func (r *Recorder) RecordExplanationFailure(predictionType string) {
	if r == nil {
		return
	}
	r.explanationFailures.WithLabelValues(predictionType).Inc()
}

// RecordCacheWriteFailure counts a failed cache write
func (r *Recorder) RecordCacheWriteFailure() {
	if r == nil {
		return
	}
	r.cacheWriteFailures.Inc()
}
