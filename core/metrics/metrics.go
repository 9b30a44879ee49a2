// Package metrics exposes Prometheus collectors for live voice sessions.
//
// A nil *Metrics is valid and records nothing, so components can take one
// unconditionally.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const DefaultNamespace = "emalive"

// Metrics holds all Prometheus collectors for the conversation core.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsTotal   *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	// Audio metrics
	FramesSent      prometheus.Counter
	FramesDropped   prometheus.Counter
	ChunksScheduled prometheus.Counter
	PlaybackLead    prometheus.Histogram
	Interruptions   prometheus.Counter

	// Transcript metrics
	TurnsCompleted    prometheus.Counter
	MessagesFinalized *prometheus.CounterVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
}

// New creates a Metrics instance with every collector registered on its own
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()

	sessionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of live sessions by outcome",
		},
		[]string{"outcome"},
	)

	sessionsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live sessions that are connecting or open",
		},
	)

	sessionDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Time live sessions spent open",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	framesSent := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Captured audio frames transmitted to the remote session",
		},
	)

	framesDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Captured audio frames dropped before the session was open",
		},
	)

	chunksScheduled := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_scheduled_total",
			Help:      "Speech audio chunks scheduled for playback",
		},
	)

	playbackLead := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "playback_queue_seconds",
			Help:      "How far ahead of now a chunk was scheduled to start",
			Buckets:   []float64{0, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	interruptions := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interruptions_total",
			Help:      "Barge-in interruptions that cancelled pending playback",
		},
	)

	turnsCompleted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_completed_total",
			Help:      "Completed assistant turns",
		},
	)

	messagesFinalized := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_finalized_total",
			Help:      "Messages appended to the conversation by sender",
		},
		[]string{"sender"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Session failures by kind",
		},
		[]string{"kind"},
	)

	registry.MustRegister(
		sessionsTotal,
		sessionsActive,
		sessionDuration,
		framesSent,
		framesDropped,
		chunksScheduled,
		playbackLead,
		interruptions,
		turnsCompleted,
		messagesFinalized,
		errorsTotal,
	)

	return &Metrics{
		registry:          registry,
		SessionsTotal:     sessionsTotal,
		SessionsActive:    sessionsActive,
		SessionDuration:   sessionDuration,
		FramesSent:        framesSent,
		FramesDropped:     framesDropped,
		ChunksScheduled:   chunksScheduled,
		PlaybackLead:      playbackLead,
		Interruptions:     interruptions,
		TurnsCompleted:    turnsCompleted,
		MessagesFinalized: messagesFinalized,
		ErrorsTotal:       errorsTotal,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session leaving the active states. openFor is
// zero for sessions that never reached open.
func (m *Metrics) RecordSessionEnd(outcome string, openFor time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(outcome).Inc()
	if openFor > 0 {
		m.SessionDuration.Observe(openFor.Seconds())
	}
}

func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.FramesSent.Inc()
}

func (m *Metrics) RecordFrameDropped() {
	if m == nil {
		return
	}
	m.FramesDropped.Inc()
}

func (m *Metrics) RecordChunkScheduled(lead time.Duration) {
	if m == nil {
		return
	}
	m.ChunksScheduled.Inc()
	m.PlaybackLead.Observe(lead.Seconds())
}

func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

func (m *Metrics) RecordTurnCompleted() {
	if m == nil {
		return
	}
	m.TurnsCompleted.Inc()
}

func (m *Metrics) RecordMessage(sender string) {
	if m == nil {
		return
	}
	m.MessagesFinalized.WithLabelValues(sender).Inc()
}

func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(kind).Inc()
}
