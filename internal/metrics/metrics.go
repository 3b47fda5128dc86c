package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreschagin/anomaly-engine/internal/application/stats"
)

// Metrics bundles prometheus collectors exposed on /metrics. Engine
// counters are read lazily from the stats snapshot, so the scoring hot
// path never touches prometheus directly.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDurationSec *prometheus.HistogramVec
}

// New registers HTTP collectors plus lazy engine gauges. cachedModels
// and wsClients report the current model cache and websocket hub sizes.
func New(registry *prometheus.Registry, engine *stats.Stats, cachedModels, wsClients func() float64) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_http_requests_total",
			Help: "Total number of engine HTTP requests.",
		}, []string{"route", "method", "status"}),
		RequestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_http_request_duration_seconds",
			Help:    "Engine HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDurationSec,
	)

	snapshotCounter := func(name, help string, value func(stats.Snapshot) uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return float64(value(engine.Snapshot()))
		})
	}

	registry.MustRegister(
		snapshotCounter("engine_readings_total", "Total number of readings accepted from the stream.",
			func(s stats.Snapshot) uint64 { return s.ReadingsIn }),
		snapshotCounter("engine_readings_invalid_total", "Total number of malformed readings dropped.",
			func(s stats.Snapshot) uint64 { return s.InvalidReadings }),
		snapshotCounter("engine_readings_late_total", "Total number of readings dropped for exceeding lateness tolerance.",
			func(s stats.Snapshot) uint64 { return s.LateDrops }),
		snapshotCounter("engine_verdicts_total", "Total number of anomaly verdicts produced.",
			func(s stats.Snapshot) uint64 { return s.Verdicts }),
		snapshotCounter("engine_anomalies_total", "Total number of anomalous verdicts.",
			func(s stats.Snapshot) uint64 { return s.Anomalies }),
		snapshotCounter("engine_verdicts_degraded_total", "Total number of verdicts scored with a stale model.",
			func(s stats.Snapshot) uint64 { return s.DegradedVerdicts }),
		snapshotCounter("engine_alerts_published_total", "Total number of alerts published to the broker.",
			func(s stats.Snapshot) uint64 { return s.AlertsPublished }),
		snapshotCounter("engine_alerts_suppressed_total", "Total number of alerts dropped by suppression.",
			func(s stats.Snapshot) uint64 { return s.AlertsSuppressed }),
		snapshotCounter("engine_publish_failures_total", "Total number of alert publish failures after retries.",
			func(s stats.Snapshot) uint64 { return s.PublishFailures }),
		snapshotCounter("engine_model_cache_hits_total", "Total number of fresh model cache hits.",
			func(s stats.Snapshot) uint64 { return s.CacheHits }),
		snapshotCounter("engine_model_cache_misses_total", "Total number of model cache misses.",
			func(s stats.Snapshot) uint64 { return s.CacheMisses }),
		snapshotCounter("engine_model_builds_total", "Total number of models trained on demand.",
			func(s stats.Snapshot) uint64 { return s.CacheBuilds }),
		snapshotCounter("engine_model_cache_evictions_total", "Total number of LRU model evictions.",
			func(s stats.Snapshot) uint64 { return s.CacheEvictions }),
	)

	if cachedModels != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "engine_model_cache_entries",
			Help: "Current number of models held in the cache.",
		}, cachedModels))
	}
	if wsClients != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "engine_websocket_clients",
			Help: "Current number of connected websocket clients.",
		}, wsClients))
	}

	return m
}

// Middleware records request counters and latency per route.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.RequestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

func normalizeRoute(path string) string {
	switch path {
	case "/healthz", "/readyz", "/stats", "/metrics", "/ws/alerts":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rw *statusRecorder) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

// Hijack passes websocket upgrades through wrapped ResponseWriter.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

// Flush keeps streaming behavior for handlers that require it.
func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
