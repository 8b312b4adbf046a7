// Package metrics exposes pipeline and sidecar HTTP metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "session_telemetry"

// Metrics bundles prometheus collectors and implements port.PipelineMetrics.
type Metrics struct {
	registry *prometheus.Registry

	entriesSubmitted   prometheus.Counter
	entriesDropped     *prometheus.CounterVec
	entriesFlushed     prometheus.Counter
	outfilesSealed     *prometheus.CounterVec
	batchesUploaded    prometheus.Counter
	entriesUploaded    prometheus.Counter
	uploadFailures     *prometheus.CounterVec
	sessionsRegistered prometheus.Counter
	authRequests       prometheus.Counter
	sendCycleDuration  *prometheus.HistogramVec

	requestsTotal      *prometheus.CounterVec
	requestDurationSec *prometheus.HistogramVec
}

var _ port.PipelineMetrics = (*Metrics)(nil)

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		entriesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_submitted_total",
			Help:      "Total number of entries accepted into the queue.",
		}),
		entriesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_dropped_total",
			Help:      "Total number of entries dropped before upload.",
		}, []string{"reason"}),
		entriesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_flushed_total",
			Help:      "Total number of entries written to the session file.",
		}),
		outfilesSealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outfiles_sealed_total",
			Help:      "Total number of sealed entry files.",
		}, []string{"reason"}),
		batchesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_uploaded_total",
			Help:      "Total number of batches acknowledged by the ingest service.",
		}),
		entriesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_uploaded_total",
			Help:      "Total number of entries acknowledged by the ingest service.",
		}),
		uploadFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_failures_total",
			Help:      "Total number of failed ingest calls.",
		}, []string{"operation"}),
		sessionsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_registered_total",
			Help:      "Total number of sessions registered with the ingest service.",
		}),
		authRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_requests_total",
			Help:      "Total number of access token requests.",
		}),
		sendCycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_cycle_duration_seconds",
			Help:      "Duration of session send cycles in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of sidecar HTTP requests.",
		}, []string{"route", "method", "status"}),
		requestDurationSec: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Sidecar request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}

	registry.MustRegister(
		m.entriesSubmitted,
		m.entriesDropped,
		m.entriesFlushed,
		m.outfilesSealed,
		m.batchesUploaded,
		m.entriesUploaded,
		m.uploadFailures,
		m.sessionsRegistered,
		m.authRequests,
		m.sendCycleDuration,
		m.requestsTotal,
		m.requestDurationSec,
	)

	return m
}

// ObserveQueueDepth registers a gauge read from fn on every scrape.
func (m *Metrics) ObserveQueueDepth(fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Entries buffered in memory for the current session.",
	}, fn))
}

func (m *Metrics) EntriesSubmitted(n int) {
	m.entriesSubmitted.Add(float64(n))
}

func (m *Metrics) EntriesDropped(reason string, n int) {
	m.entriesDropped.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) EntriesFlushed(n int) {
	m.entriesFlushed.Add(float64(n))
}

func (m *Metrics) OutfileSealed(reason string) {
	m.outfilesSealed.WithLabelValues(reason).Inc()
}

func (m *Metrics) BatchUploaded(entries int) {
	m.batchesUploaded.Inc()
	m.entriesUploaded.Add(float64(entries))
}

func (m *Metrics) UploadFailed(operation string) {
	m.uploadFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) SessionRegistered() {
	m.sessionsRegistered.Inc()
}

func (m *Metrics) AuthRequested() {
	m.authRequests.Inc()
}

func (m *Metrics) SendCycleObserved(duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.sendCycleDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// Middleware records request counts and latencies for the sidecar API.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedAt := time.Now()
		wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		route := normalizeRoute(r.URL.Path)
		m.requestsTotal.WithLabelValues(route, r.Method, status).Inc()
		m.requestDurationSec.WithLabelValues(route, r.Method, status).Observe(time.Since(startedAt).Seconds())
	})
}

func normalizeRoute(path string) string {
	switch {
	case path == "/healthz" || path == "/readyz" || path == "/metrics":
		return path
	case path == "/api/v1/entries":
		return path
	case strings.HasPrefix(path, "/api/v1/lifecycle/"):
		return "/api/v1/lifecycle/*"
	case path == "/api/v1" || strings.HasPrefix(path, "/api/v1/"):
		return "/api/v1/*"
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

// Flush keeps streaming behavior for handlers that require it.
func (rw *statusRecorder) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
