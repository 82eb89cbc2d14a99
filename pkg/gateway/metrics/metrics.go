// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram

	// Conversation metrics
	TurnsTotal       *prometheus.CounterVec
	LanguageSwitches *prometheus.CounterVec
	StageFailures    *prometheus.CounterVec

	// Audio metrics
	AudioBytesTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// New creates a Metrics instance with all gateway metrics registered on a
// private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vaani"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of active voice sessions",
		},
	)

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of voice sessions by end reason",
		},
		[]string{"reason"},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Voice session duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	turnsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total conversation turns by speaker",
		},
		[]string{"speaker"},
	)

	languageSwitches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "language_switches_total",
			Help:      "Total active language switches",
		},
		[]string{"from", "to"},
	)

	stageFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total pipeline stage failures",
		},
		[]string{"stage"},
	)

	audioBytesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total audio bytes moved over live connections",
		},
		[]string{"direction"},
	)

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.05, 0.5, 1, 5, 30},
		},
		[]string{"path"},
	)

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		turnsTotal,
		languageSwitches,
		stageFailures,
		audioBytesTotal,
		httpRequestsTotal,
		httpDuration,
	)

	return &Metrics{
		registry:          registry,
		SessionsActive:    sessionsActive,
		SessionsTotal:     sessionsTotal,
		SessionDuration:   sessionDuration,
		TurnsTotal:        turnsTotal,
		LanguageSwitches:  languageSwitches,
		StageFailures:     stageFailures,
		AudioBytesTotal:   audioBytesTotal,
		HTTPRequestsTotal: httpRequestsTotal,
		HTTPDuration:      httpDuration,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordSessionStart records a new live session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a live session ending.
func (m *Metrics) RecordSessionEnd(reason string, duration time.Duration) {
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(reason).Inc()
	m.SessionDuration.Observe(duration.Seconds())
}

// RecordTurn records a committed conversation turn.
func (m *Metrics) RecordTurn(speaker string) {
	m.TurnsTotal.WithLabelValues(speaker).Inc()
}

// RecordLanguageSwitch records an active language change.
func (m *Metrics) RecordLanguageSwitch(from, to string) {
	m.LanguageSwitches.WithLabelValues(from, to).Inc()
}

// RecordStageFailure records a pipeline stage failure.
func (m *Metrics) RecordStageFailure(stage string) {
	m.StageFailures.WithLabelValues(stage).Inc()
}

// RecordAudio records audio bytes moved over a live connection.
func (m *Metrics) RecordAudio(direction string, bytes int) {
	if bytes > 0 {
		m.AudioBytesTotal.WithLabelValues(direction).Add(float64(bytes))
	}
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(path).Observe(duration.Seconds())
}
