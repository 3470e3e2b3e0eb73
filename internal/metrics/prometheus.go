package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice assistant service
type Metrics struct {
	// Stream metrics
	StreamConnections prometheus.Gauge
	FramesReceived    *prometheus.CounterVec
	FrameErrors       prometheus.Counter

	// Session metrics
	ActiveSessions prometheus.Gauge

	// Segment metrics
	SegmentsProcessed prometheus.Counter
	SegmentMisfires   prometheus.Counter
	SegmentDuration   prometheus.Histogram
	EncodedBytes      prometheus.Histogram

	// Pipeline stage metrics
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Stream metrics
		StreamConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_stream_connections",
			Help: "Current number of open WebSocket streams",
		}),
		FramesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_stream_frames_received_total",
			Help: "Total number of stream frames received",
		}, []string{"type"}),
		FrameErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_stream_frame_errors_total",
			Help: "Total number of stream frames that could not be parsed or assembled",
		}),

		// Session metrics
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "voice_active_sessions",
			Help: "Current number of conversation sessions",
		}),

		// Segment metrics
		SegmentsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_segments_processed_total",
			Help: "Total number of speech segments processed",
		}),
		SegmentMisfires: factory.NewCounter(prometheus.CounterOpts{
			Name: "voice_segment_misfires_total",
			Help: "Total number of segments rejected by the speech gate",
		}),
		SegmentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_segment_duration_seconds",
			Help:    "Duration of processed speech segments",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 9), // 250ms to ~1 minute
		}),
		EncodedBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "voice_encoded_wav_bytes",
			Help:    "Size of WAV streams produced by the encode endpoint",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// Pipeline stage metrics
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_stage_duration_seconds",
			Help:    "Duration of pipeline stages (transcribe, chat, synthesize)",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_stage_failures_total",
			Help: "Total number of failed pipeline stages",
		}, []string{"stage"}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voice_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "voice_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetStreamConnections sets the current number of open streams
func (m *Metrics) SetStreamConnections(count int) {
	m.StreamConnections.Set(float64(count))
}

// RecordFrame increments the frames received counter for a frame type
func (m *Metrics) RecordFrame(frameType string) {
	m.FramesReceived.WithLabelValues(frameType).Inc()
}

// RecordFrameError increments the frame errors counter
func (m *Metrics) RecordFrameError() {
	m.FrameErrors.Inc()
}

// RecordEncoded records the size of an encoded WAV stream
func (m *Metrics) RecordEncoded(sizeBytes int) {
	m.EncodedBytes.Observe(float64(sizeBytes))
}

// SegmentProcessed records a processed segment
func (m *Metrics) SegmentProcessed(misfire bool, duration time.Duration) {
	m.SegmentsProcessed.Inc()
	if misfire {
		m.SegmentMisfires.Inc()
	}
	m.SegmentDuration.Observe(duration.Seconds())
}

// StageCompleted records the duration and outcome of a pipeline stage
func (m *Metrics) StageCompleted(stage string, elapsed time.Duration, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// SessionsActive sets the current number of sessions
func (m *Metrics) SessionsActive(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
