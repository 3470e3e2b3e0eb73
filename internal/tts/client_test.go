package tts

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
)

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func pcmBytes(values ...int16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}

func newTestServer(t *testing.T, body []byte, status int) (*httptest.Server, *speechRequest, *int32) {
	t.Helper()
	recorded := &speechRequest{}
	var calls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		if r.URL.Path != "/v1/audio/speech" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(recorded)

		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"voice not loaded"}}`))
			return
		}

		w.Header().Set("Content-Type", "audio/pcm")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	return srv, recorded, &calls
}

func testConfig(baseURL string) Config {
	return Config{
		BaseURL: baseURL + "/v1",
		Model:   "tts-1",
		Voices: []Voice{
			{ID: "en_US-hfc_female-medium", Upstream: "alloy", SampleRate: 22050},
			{ID: "GLaDOS", Upstream: "echo", SampleRate: 16000},
		},
		Timeout:      5 * time.Second,
		RetryBackoff: time.Millisecond,
		CacheSize:    8,
	}
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Model: "tts-1"})
	assert.ErrorContains(t, err, "base URL")

	_, err = NewClient(Config{BaseURL: "http://localhost"})
	assert.ErrorContains(t, err, "model")

	_, err = NewClient(Config{BaseURL: "http://localhost", Model: "tts-1", DefaultVoice: "nobody"})
	assert.ErrorIs(t, err, ErrUnknownVoice)

	_, err = NewClient(Config{BaseURL: "http://localhost", Model: "tts-1", Voices: []Voice{{ID: "a"}, {ID: "a"}}})
	assert.ErrorContains(t, err, "duplicate voice")
}

func TestDefaultVoices(t *testing.T) {
	client, err := NewClient(Config{BaseURL: "http://localhost", Model: "tts-1"})
	require.NoError(t, err)

	voices := client.Voices()
	require.Len(t, voices, 3)
	assert.Equal(t, "en_US-hfc_female-medium", voices[0].ID)
	assert.Equal(t, "en_US-hfc_male-medium", voices[1].ID)
	assert.Equal(t, "GLaDOS", voices[2].ID)
	assert.Equal(t, "en_US-hfc_female-medium", client.DefaultVoice())
	assert.True(t, client.HasVoice("GLaDOS"))
	assert.False(t, client.HasVoice("HAL"))
}

func TestSynthesize(t *testing.T) {
	pcm := pcmBytes(0, 16384, -16384, 32767)
	srv, recorded, _ := newTestServer(t, pcm, http.StatusOK)

	client, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	speech, err := client.Synthesize(context.Background(), "  Hello there.  ", "")
	require.NoError(t, err)

	assert.Equal(t, "Hello there.", recorded.Input)
	assert.Equal(t, "alloy", recorded.Voice)
	assert.Equal(t, "tts-1", recorded.Model)
	assert.Equal(t, "pcm", recorded.ResponseFormat)

	assert.Equal(t, "en_US-hfc_female-medium", speech.Voice)
	assert.Equal(t, 22050, speech.SampleRate)
	assert.False(t, speech.Cached)
	require.Len(t, speech.WAV, audio.HeaderSize+len(pcm))

	// Raw PCM passes through the encoder unchanged
	assert.Equal(t, pcm, speech.WAV[audio.HeaderSize:])

	info, err := audio.GetWAVInfo(speech.WAV)
	require.NoError(t, err)
	assert.Equal(t, uint32(22050), info.SampleRate)
	assert.Equal(t, uint16(1), info.Channels)
	assert.InDelta(t, 4.0/22050, speech.Duration, 1e-9)
}

func TestSynthesizeVoiceSampleRate(t *testing.T) {
	srv, recorded, _ := newTestServer(t, pcmBytes(1, 2), http.StatusOK)

	client, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	speech, err := client.Synthesize(context.Background(), "The cake is a lie", "GLaDOS")
	require.NoError(t, err)

	assert.Equal(t, "echo", recorded.Voice)
	assert.Equal(t, 16000, speech.SampleRate)
}

func TestSynthesizeCache(t *testing.T) {
	srv, _, calls := newTestServer(t, pcmBytes(1, 2, 3), http.StatusOK)

	client, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	first, err := client.Synthesize(context.Background(), "Hello", "GLaDOS")
	require.NoError(t, err)

	second, err := client.Synthesize(context.Background(), " Hello ", "GLaDOS")
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	assert.True(t, second.Cached)
	assert.False(t, first.Cached)
	assert.Equal(t, first.WAV, second.WAV)

	// A different voice is a different utterance
	_, err = client.Synthesize(context.Background(), "Hello", "en_US-hfc_female-medium")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))

	stats := client.GetStats()
	assert.Equal(t, uint64(3), stats.TotalRequests)
	assert.Equal(t, uint64(1), stats.CacheHits)
	assert.Equal(t, 2, stats.CachedItems)
}

func TestSynthesizeErrors(t *testing.T) {
	srv, _, _ := newTestServer(t, []byte{1, 2, 3}, http.StatusOK)

	client, err := NewClient(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = client.Synthesize(context.Background(), "   ", "")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = client.Synthesize(context.Background(), "Hi", "HAL")
	assert.ErrorIs(t, err, ErrUnknownVoice)

	// Odd-length PCM cannot be 16-bit audio
	_, err = client.Synthesize(context.Background(), "Hi", "")
	assert.ErrorContains(t, err, "invalid speech audio")
	assert.Equal(t, uint64(1), client.GetStats().FailedRequests)
}

func TestSynthesizeUpstreamError(t *testing.T) {
	srv, _, calls := newTestServer(t, nil, http.StatusInternalServerError)

	config := testConfig(srv.URL)
	config.MaxRetries = 1
	client, err := NewClient(config)
	require.NoError(t, err)

	_, err = client.Synthesize(context.Background(), "Hi", "")
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}
