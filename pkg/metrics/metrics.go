package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeEmpty   = "empty"
)

// Metrics contains the Prometheus collectors for the moderation service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RemoteCalls        *prometheus.CounterVec
	RemoteCallDuration *prometheus.HistogramVec
	AnalysesByRating   *prometheus.CounterVec
	StaleResults       *prometheus.CounterVec
	ActiveSessions     prometheus.Gauge
	PlaybacksStarted   prometheus.Counter
	PlaybacksStopped   *prometheus.CounterVec

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,

		RemoteCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosafe_remote_calls_total",
			Help: "Total number of calls to remote AI providers",
		}, []string{"capability", "provider", "outcome"}),
		RemoteCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "radiosafe_remote_call_duration_seconds",
			Help:    "Duration of calls to remote AI providers",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}, []string{"capability", "provider"}),
		AnalysesByRating: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosafe_analyses_total",
			Help: "Total number of completed analyses by rating",
		}, []string{"rating"}),
		StaleResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosafe_stale_results_discarded_total",
			Help: "Results that arrived after their session was reset",
		}, []string{"kind"}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radiosafe_active_sessions",
			Help: "Current number of sessions",
		}),
		PlaybacksStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "radiosafe_playbacks_started_total",
			Help: "Total number of summary playbacks started",
		}),
		PlaybacksStopped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosafe_playbacks_stopped_total",
			Help: "Total number of summary playbacks finished",
		}, []string{"reason"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radiosafe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "radiosafe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordRemoteCall records one provider round trip.
func (m *Metrics) RecordRemoteCall(capability, provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RemoteCalls.WithLabelValues(capability, provider, outcome).Inc()
	m.RemoteCallDuration.WithLabelValues(capability, provider).Observe(duration.Seconds())
}

func (m *Metrics) RecordAnalysis(rating string) {
	if m == nil {
		return
	}
	m.AnalysesByRating.WithLabelValues(rating).Inc()
}

// RecordStaleResult counts a late analysis or chat reply that was dropped.
func (m *Metrics) RecordStaleResult(kind string) {
	if m == nil {
		return
	}
	m.StaleResults.WithLabelValues(kind).Inc()
}

func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

func (m *Metrics) RecordPlaybackStarted() {
	if m == nil {
		return
	}
	m.PlaybacksStarted.Inc()
}

// RecordPlaybackStopped takes "ended" for natural completion, "stopped" otherwise.
func (m *Metrics) RecordPlaybackStopped(reason string) {
	if m == nil {
		return
	}
	m.PlaybacksStopped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
