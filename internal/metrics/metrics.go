// Package metrics holds the prometheus instruments for the copilot pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains every instrument exported by the copilot. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// ingress
	FramesReceived prometheus.Counter
	FramesMuted    prometheus.Counter
	FramesDropped  prometheus.Counter
	QueueDepth     prometheus.Gauge

	// segmentation
	Utterances       prometheus.Counter
	UtteranceSeconds prometheus.Histogram

	// transcription
	TranscriptionDuration prometheus.Histogram
	TranscriptionFailures prometheus.Counter
	EmptyTranscripts      prometheus.Counter

	// wake and response
	WakeEvents       prometheus.Counter
	ResponseDuration prometheus.Histogram
	SynthesisResults *prometheus.CounterVec

	// capture
	CaptureErrors *prometheus.CounterVec
	ActiveSources prometheus.Gauge
}

// New creates and registers all instruments on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		FramesReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "copilot_frames_received_total",
			Help: "Audio chunks delivered by capture sources",
		}),
		FramesMuted: f.NewCounter(prometheus.CounterOpts{
			Name: "copilot_frames_muted_total",
			Help: "Audio chunks discarded while muted",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "copilot_frames_dropped_total",
			Help: "Audio chunks dropped because the ingress queue was full",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "copilot_ingress_queue_depth",
			Help: "Chunks waiting in the ingress queue",
		}),
		Utterances: f.NewCounter(prometheus.CounterOpts{
			Name: "copilot_utterances_total",
			Help: "Utterances emitted by the segmenter",
		}),
		UtteranceSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "copilot_utterance_seconds",
			Help:    "Length of segmented utterances",
			Buckets: []float64{0.3, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		TranscriptionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "copilot_transcription_seconds",
			Help:    "Time spent in the transcription service",
			Buckets: prometheus.DefBuckets,
		}),
		TranscriptionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "copilot_transcription_failures_total",
			Help: "Transcription calls that returned an error",
		}),
		EmptyTranscripts: f.NewCounter(prometheus.CounterOpts{
			Name: "copilot_empty_transcripts_total",
			Help: "Utterances that transcribed to no text",
		}),
		WakeEvents: f.NewCounter(prometheus.CounterOpts{
			Name: "copilot_wake_events_total",
			Help: "Transcripts that contained the activation phrase",
		}),
		ResponseDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "copilot_wake_to_response_seconds",
			Help:    "Time from wake detection to a generated response",
			Buckets: []float64{0.25, 0.5, 1, 1.5, 2, 2.5, 4, 8},
		}),
		SynthesisResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "copilot_synthesis_total",
			Help: "Speech synthesis outcomes",
		}, []string{"result"}),
		CaptureErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "copilot_capture_errors_total",
			Help: "Capture sources that failed to start or stopped with an error",
		}, []string{"source"}),
		ActiveSources: f.NewGauge(prometheus.GaugeOpts{
			Name: "copilot_capture_sources_active",
			Help: "Capture sources currently delivering audio",
		}),
	}
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RecordFrame() {
	if m != nil {
		m.FramesReceived.Inc()
	}
}

func (m *Metrics) RecordMuted() {
	if m != nil {
		m.FramesMuted.Inc()
	}
}

func (m *Metrics) RecordDrop() {
	if m != nil {
		m.FramesDropped.Inc()
	}
}

func (m *Metrics) SetQueueDepth(n int) {
	if m != nil {
		m.QueueDepth.Set(float64(n))
	}
}

func (m *Metrics) RecordUtterance(d time.Duration) {
	if m != nil {
		m.Utterances.Inc()
		m.UtteranceSeconds.Observe(d.Seconds())
	}
}

// RecordTranscription observes one transcription call.
func (m *Metrics) RecordTranscription(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.TranscriptionDuration.Observe(d.Seconds())
	if err != nil {
		m.TranscriptionFailures.Inc()
	}
}

func (m *Metrics) RecordEmptyTranscript() {
	if m != nil {
		m.EmptyTranscripts.Inc()
	}
}

func (m *Metrics) RecordWake() {
	if m != nil {
		m.WakeEvents.Inc()
	}
}

func (m *Metrics) RecordResponse(d time.Duration) {
	if m != nil {
		m.ResponseDuration.Observe(d.Seconds())
	}
}

// RecordSynthesis counts a synthesis outcome ("ok" or "error").
func (m *Metrics) RecordSynthesis(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SynthesisResults.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCaptureError(source string) {
	if m != nil {
		m.CaptureErrors.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) SetActiveSources(n int) {
	if m != nil {
		m.ActiveSources.Set(float64(n))
	}
}
