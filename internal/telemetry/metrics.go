// Package telemetry exposes Prometheus metrics for ranking, embedding usage,
// the BM25 index cache and MCP tool calls. Nothing is reported externally;
// metrics are served on an opt-in local address.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/foldrank/internal/embed"
	"github.com/Aman-CERP/foldrank/internal/errors"
	"github.com/Aman-CERP/foldrank/internal/search"
	"github.com/Aman-CERP/foldrank/internal/store"
)

const namespace = "foldrank"

// Metrics owns a private registry so tests and multiple servers never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	ranksTotal       *prometheus.CounterVec
	rankDuration     *prometheus.HistogramVec
	embedDuration    prometheus.Histogram
	rankCandidates   prometheus.Histogram
	embedTokensTotal *prometheus.CounterVec
	cacheHitsTotal   *prometheus.CounterVec
	cacheBuildsTotal *prometheus.CounterVec
	cacheBuildTime   *prometheus.HistogramVec
	toolCallsTotal   *prometheus.CounterVec
	toolDuration     *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	requestInFlight  prometheus.Gauge
}

// Verify interface implementations at compile time
var (
	_ embed.UsageRecorder = (*Metrics)(nil)
	_ search.Observer     = (*Metrics)(nil)
	_ store.CacheObserver = (*Metrics)(nil)
)

// NewMetrics registers all collectors on a new registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	ranksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rank",
			Name:      "requests_total",
			Help:      "Total rank requests by fusion mode and error code.",
		},
		[]string{"fusion", "code"},
	)
	rankDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rank",
			Name:      "duration_seconds",
			Help:      "End-to-end rank duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"fusion"},
	)
	embedDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rank",
			Name:      "embed_duration_seconds",
			Help:      "Time spent waiting on the embedding provider per rank.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	rankCandidates := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rank",
			Name:      "candidates",
			Help:      "Distribution of candidate counts per rank.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
	embedTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embed",
			Name:      "tokens_total",
			Help:      "Prompt tokens reported by the embedding provider.",
		},
		[]string{"model"},
	)
	cacheHitsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index_cache",
			Name:      "hits_total",
			Help:      "BM25 index cache hits.",
		},
		[]string{"backend"},
	)
	cacheBuildsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index_cache",
			Name:      "builds_total",
			Help:      "BM25 index builds after a cache miss.",
		},
		[]string{"backend"},
	)
	cacheBuildTime := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "index_cache",
			Name:      "build_duration_seconds",
			Help:      "BM25 index build duration in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"backend"},
	)
	toolCallsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "MCP tool calls by tool and status.",
		},
		[]string{"tool", "status"},
	)
	toolDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mcp",
			Name:      "tool_duration_seconds",
			Help:      "MCP tool call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)
	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served by the MCP http transport.",
		},
		[]string{"method", "status"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
		},
	)

	registry.MustRegister(
		ranksTotal,
		rankDuration,
		embedDuration,
		rankCandidates,
		embedTokensTotal,
		cacheHitsTotal,
		cacheBuildsTotal,
		cacheBuildTime,
		toolCallsTotal,
		toolDuration,
		requestTotal,
		requestInFlight,
	)

	return &Metrics{
		registry:         registry,
		ranksTotal:       ranksTotal,
		rankDuration:     rankDuration,
		embedDuration:    embedDuration,
		rankCandidates:   rankCandidates,
		embedTokensTotal: embedTokensTotal,
		cacheHitsTotal:   cacheHitsTotal,
		cacheBuildsTotal: cacheBuildsTotal,
		cacheBuildTime:   cacheBuildTime,
		toolCallsTotal:   toolCallsTotal,
		toolDuration:     toolDuration,
		requestTotal:     requestTotal,
		requestInFlight:  requestInFlight,
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RankCompleted implements search.Observer.
func (m *Metrics) RankCompleted(stats search.RankStats) {
	fusion := string(stats.Fusion)
	if fusion == "" {
		fusion = "unknown"
	}
	code := "ok"
	if stats.Err != nil {
		code = errors.GetCode(stats.Err)
		if code == "" {
			code = "unknown"
		}
	}

	m.ranksTotal.WithLabelValues(fusion, code).Inc()
	m.rankDuration.WithLabelValues(fusion).Observe(stats.Elapsed.Seconds())
	if stats.Err == nil {
		m.rankCandidates.Observe(float64(stats.Candidates))
		m.embedDuration.Observe(stats.EmbedElapsed.Seconds())
	}
}

// RecordUsage implements embed.UsageRecorder.
func (m *Metrics) RecordUsage(model string, tokens int) {
	if tokens <= 0 {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.embedTokensTotal.WithLabelValues(model).Add(float64(tokens))
}

// IndexCacheHit implements store.CacheObserver.
func (m *Metrics) IndexCacheHit(backend string) {
	m.cacheHitsTotal.WithLabelValues(backend).Inc()
}

// IndexRebuilt implements store.CacheObserver.
func (m *Metrics) IndexRebuilt(backend string, _ int, elapsed time.Duration) {
	m.cacheBuildsTotal.WithLabelValues(backend).Inc()
	m.cacheBuildTime.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// RecordToolCall counts one MCP tool call. err selects the status label.
func (m *Metrics) RecordToolCall(tool string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if code := errors.GetCode(err); code != "" {
			status = code
		}
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// Middleware counts requests to next by method and status.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(r.Method, strconv.Itoa(recorder.statusCode)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Flush keeps streaming responses working through the recorder.
func (w *statusRecorder) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
