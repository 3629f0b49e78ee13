// Package metrics provides Prometheus metrics for truthsig.
//
// Features:
//   - Counters for analyses, forensics verdicts and frame extractions
//   - Histograms for trust scores and analysis latency
//   - A private registry, so tests and embedders never collide
//   - Optional HTTP endpoint for scraping
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "truthsig"

// DurationBuckets are buckets for analysis durations (in seconds). Video
// sampling runs a subprocess per frame, so the tail is long.
var DurationBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300,
}

// ScoreBuckets split the 0-100 trust score into deciles.
var ScoreBuckets = prometheus.LinearBuckets(10, 10, 10)

// Metrics holds all truthsig metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Counters
	AnalysesTotal         *prometheus.CounterVec
	ForensicsStatusTotal  *prometheus.CounterVec
	FrameExtractionsTotal *prometheus.CounterVec
	ErrorsTotal           prometheus.Counter

	// Histograms
	TrustScore       prometheus.Histogram
	AnalysisDuration *prometheus.HistogramVec
}

// New creates and registers all truthsig metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "analyses_total",
			Help:      "Total number of media analyses by media type and trust label",
		}, []string{"media_type", "label"}),
		ForensicsStatusTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "forensics_status_total",
			Help:      "Visual forensics verdicts by kind (image, video, unknown) and status",
		}, []string{"kind", "status"}),
		FrameExtractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "frame_extractions_total",
			Help:      "Video frame extraction attempts by result",
		}, []string{"result"}),
		ErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of failed analyses",
		}),

		TrustScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "trust_score",
			Help:      "Distribution of fused trust scores",
			Buckets:   ScoreBuckets,
		}),
		AnalysisDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall clock time of a full analysis",
			Buckets:   DurationBuckets,
		}, []string{"media_type"}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.ForensicsStatusTotal,
		m.FrameExtractionsTotal,
		m.ErrorsTotal,
		m.TrustScore,
		m.AnalysisDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAnalysis records a completed analysis.
func (m *Metrics) RecordAnalysis(mediaType, label string, score int, duration time.Duration) {
	m.AnalysesTotal.WithLabelValues(mediaType, label).Inc()
	m.TrustScore.Observe(float64(score))
	m.AnalysisDuration.WithLabelValues(mediaType).Observe(duration.Seconds())
}

// RecordForensics records a visual forensics verdict.
func (m *Metrics) RecordForensics(kind, status string) {
	m.ForensicsStatusTotal.WithLabelValues(kind, status).Inc()
}

// RecordFrameExtractions records the outcome of a sampling pass.
func (m *Metrics) RecordFrameExtractions(ok, failed int) {
	if ok > 0 {
		m.FrameExtractionsTotal.WithLabelValues("ok").Add(float64(ok))
	}
	if failed > 0 {
		m.FrameExtractionsTotal.WithLabelValues("error").Add(float64(failed))
	}
}

// RecordError records a failed analysis.
func (m *Metrics) RecordError() {
	m.ErrorsTotal.Inc()
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}
