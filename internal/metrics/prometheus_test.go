package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordFrame("audio")
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
	m.StageCompleted("chat", time.Second, nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}

	for _, name := range []string{
		"voice_stream_connections",
		"voice_stream_frames_received_total",
		"voice_active_sessions",
		"voice_segments_processed_total",
		"voice_stage_duration_seconds",
		"voice_http_requests_total",
		"voice_http_request_duration_seconds",
	} {
		assert.True(t, names[name], "missing metric %s", name)
	}

	// A second set of metrics needs its own registry
	assert.Panics(t, func() { NewMetrics(reg) })
	assert.NotPanics(t, func() { NewMetrics(prometheus.NewRegistry()) })
}

func TestSessionObserver(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SegmentProcessed(false, 2*time.Second)
	m.SegmentProcessed(true, 100*time.Millisecond)
	m.SessionsActive(3)
	m.StageCompleted("transcribe", time.Second, nil)
	m.StageCompleted("transcribe", time.Second, errors.New("timeout"))

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SegmentsProcessed))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SegmentMisfires))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StageFailures.WithLabelValues("transcribe")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.StageFailures.WithLabelValues("chat")))
}

func TestStreamAndHTTPMetrics(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetStreamConnections(2)
	m.RecordFrame("start")
	m.RecordFrame("audio")
	m.RecordFrame("audio")
	m.RecordFrameError()
	m.RecordHTTPRequest("POST", "/v1/encode", "200", 0.002)
	m.RecordHTTPError("POST", "/v1/encode", "bad_request")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.StreamConnections))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.FramesReceived.WithLabelValues("audio")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FrameErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", "/v1/encode", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPErrors.WithLabelValues("POST", "/v1/encode", "bad_request")))
}
