package server

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
	"github.com/skypro1111/voice-assistant-service/internal/mockapi"
	"github.com/skypro1111/voice-assistant-service/internal/protocol"
	"github.com/skypro1111/voice-assistant-service/internal/vad"
)

func (f *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/v1/stream" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	var event protocol.Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

// readResult returns the next event that is not a live indicator update
func readResult(t *testing.T, conn *websocket.Conn) protocol.Event {
	t.Helper()
	for {
		event := readEvent(t, conn)
		if event.Type != protocol.EventIndicator {
			return event
		}
	}
}

// sendSegment streams a segment as start, audio and end frames
func sendSegment(t *testing.T, conn *websocket.Conn, segmentID uint32, seg *audio.Segment, voice string) {
	t.Helper()

	start, err := protocol.BuildStartFrame(segmentID, 0, uint32(seg.SampleRate), uint8(seg.Channels), voice, "en")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, start))

	const chunk = 1600
	seq := uint32(1)
	for i := 0; i < len(seg.Samples); i += chunk {
		end := min(i+chunk, len(seg.Samples))
		frame := protocol.BuildAudioFrame(segmentID, seq, seg.Samples[i:end])
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
		seq++
	}

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.BuildEndFrame(segmentID, seq)))
}

func TestStreamConversationTurn(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, "?session_id=ws-1")

	event := readEvent(t, conn)
	assert.Equal(t, protocol.EventSession, event.Type)
	assert.Equal(t, "ws-1", event.SessionID)

	seg := speech(1)
	sendSegment(t, conn, 3, seg, "")

	event = readEvent(t, conn)
	require.Equal(t, protocol.EventIndicator, event.Type)
	assert.Equal(t, uint32(3), event.SegmentID)
	assert.Equal(t, vad.StateCapturing, event.Indicator.State)

	event = readEvent(t, conn)
	require.Equal(t, protocol.EventSegment, event.Type)
	assert.Equal(t, uint32(3), event.SegmentID)
	assert.Equal(t, audio.DataURL(seg.Encode()), event.AudioURL)
	require.NotNil(t, event.Analysis)
	assert.False(t, event.Analysis.Misfire)
	require.NotNil(t, event.Indicator)
	assert.Equal(t, vad.StateCapturing, event.Indicator.State)

	event = readEvent(t, conn)
	require.Equal(t, protocol.EventTranscript, event.Type)
	assert.Equal(t, mockapi.DefaultTranscript, event.Text)

	event = readEvent(t, conn)
	require.Equal(t, protocol.EventReply, event.Type)
	assert.Equal(t, "You said: "+mockapi.DefaultTranscript, event.Text)

	event = readEvent(t, conn)
	require.Equal(t, protocol.EventAudio, event.Type)
	assert.True(t, strings.HasPrefix(event.AudioURL, "data:audio/wav;base64,"))
	assert.Greater(t, event.Duration, 0.0)

	sess, ok := f.sessions.GetSession("ws-1")
	require.True(t, ok)
	assert.Eventually(t, func() bool { return sess.GetSessionInfo().Turns == 1 }, time.Second, 10*time.Millisecond)
}

func TestStreamReordersFrames(t *testing.T) {
	f := newFixture(t, false)
	conn := f.dial(t, "")
	readEvent(t, conn)

	start, err := protocol.BuildStartFrame(1, 0, 8, 1, "", "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, start))

	frames := [][]byte{
		protocol.BuildAudioFrame(1, 1, []float32{0.1, 0.2}),
		protocol.BuildAudioFrame(1, 3, []float32{0.5, 0.6}),
		protocol.BuildAudioFrame(1, 2, []float32{0.3, 0.4}),
		protocol.BuildEndFrame(1, 4),
	}
	for _, frame := range frames {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	}

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventSegment, event.Type)

	want := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	assert.Equal(t, audio.DataURL(audio.EncodeWAV(want, 1, 8)), event.AudioURL)
	assert.InDelta(t, 0.75, event.Duration, 1e-9)
	assert.True(t, event.Analysis.Misfire)
}

func TestStreamPushesIndicatorChanges(t *testing.T) {
	f := newFixture(t, false)
	conn := f.dial(t, "")
	readEvent(t, conn)

	start, err := protocol.BuildStartFrame(2, 0, audio.DefaultSampleRate, 1, "", "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, start))

	// One silent frame then loud frames: smoothed 0, 0.5, 0.75, 0.875
	samples := make([]float32, 4*vad.DefaultFrameSize)
	for i := vad.DefaultFrameSize; i < len(samples); i++ {
		samples[i] = 0.5
	}
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.BuildAudioFrame(2, 1, samples[:1000])))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.BuildAudioFrame(2, 2, samples[1000:])))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.BuildEndFrame(2, 3)))

	want := []struct {
		frame int
		color string
	}{
		{frame: 0, color: "#00ff00"},
		{frame: 2, color: "#ffa500"},
		{frame: 3, color: "#ff0000"},
	}
	for _, w := range want {
		event := readEvent(t, conn)
		require.Equal(t, protocol.EventIndicator, event.Type)
		assert.Equal(t, uint32(2), event.SegmentID)
		assert.Equal(t, w.frame, event.Frame)
		require.NotNil(t, event.Indicator)
		assert.Equal(t, w.color, event.Indicator.Color)
	}

	event := readEvent(t, conn)
	require.Equal(t, protocol.EventSegment, event.Type)
	assert.True(t, event.Analysis.Misfire)
	assert.Equal(t, uint64(4), f.server.deps.Gate.GetStats().LiveFrames)
}

func TestStreamReportsFrameErrors(t *testing.T) {
	f := newFixture(t, true)
	conn := f.dial(t, "")
	readEvent(t, conn)

	tests := []struct {
		name  string
		frame []byte
	}{
		{"truncated header", []byte{protocol.FrameTypeAudio, 0, 0}},
		{"unknown segment", protocol.BuildAudioFrame(42, 1, []float32{0.1})},
		{"unknown end", protocol.BuildEndFrame(43, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, tt.frame))
			event := readEvent(t, conn)
			assert.Equal(t, protocol.EventError, event.Type)
			assert.NotEmpty(t, event.Error)
		})
	}

	start, err := protocol.BuildStartFrame(5, 0, 16000, 1, "nobody", "en")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, start))
	event := readEvent(t, conn)
	assert.Equal(t, protocol.EventError, event.Type)
	assert.Equal(t, uint32(5), event.SegmentID)
	assert.Contains(t, event.Error, "unknown voice")

	empty, err := protocol.BuildStartFrame(6, 0, 16000, 1, "", "en")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, empty))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.BuildEndFrame(6, 1)))
	event = readEvent(t, conn)
	assert.Equal(t, protocol.EventError, event.Type)
	assert.Contains(t, event.Error, "no audio")
}

func TestStreamRejectsOversizedSegments(t *testing.T) {
	f := newFixture(t, false)
	f.server.config.HTTP.MaxBodyBytes = 64 * 1024
	conn := f.dial(t, "")
	readEvent(t, conn)

	start, err := protocol.BuildStartFrame(1, 0, 16000, 1, "", "")
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, start))

	// Each frame is within the read limit but the segment cap is 16384 samples
	samples := make([]float32, 10000)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.BuildAudioFrame(1, 1, samples)))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.BuildAudioFrame(1, 2, samples)))

	event := readResult(t, conn)
	assert.Equal(t, protocol.EventError, event.Type)
	assert.Contains(t, event.Error, audio.ErrSegmentTooLong.Error())

	// The segment was dropped
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.BuildEndFrame(1, 3)))
	event = readResult(t, conn)
	assert.Contains(t, event.Error, "end of unknown segment")
}

func TestStreamRequiresGet(t *testing.T) {
	f := newFixture(t, false)

	resp := f.do(t, http.MethodPost, "/v1/stream", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStopClosesStreams(t *testing.T) {
	f := newFixture(t, false)
	conn := f.dial(t, "")
	readEvent(t, conn)

	assert.Eventually(t, func() bool { return f.server.streams.Load() == 1 }, time.Second, 10*time.Millisecond)

	f.server.cancel()

	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return f.server.streams.Load() == 0 }, time.Second, 10*time.Millisecond)
}
