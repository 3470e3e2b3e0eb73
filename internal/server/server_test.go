package server

import (
	"io"
	"log/slog"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
	"github.com/skypro1111/voice-assistant-service/internal/config"
	"github.com/skypro1111/voice-assistant-service/internal/llm"
	"github.com/skypro1111/voice-assistant-service/internal/metrics"
	"github.com/skypro1111/voice-assistant-service/internal/mockapi"
	"github.com/skypro1111/voice-assistant-service/internal/session"
	"github.com/skypro1111/voice-assistant-service/internal/transcription"
	"github.com/skypro1111/voice-assistant-service/internal/tts"
	"github.com/skypro1111/voice-assistant-service/internal/vad"
)

type fixture struct {
	server       *HTTPServer
	http         *httptest.Server
	upstream     *mockapi.Server
	upstreamHTTP *httptest.Server
	sessions     *session.Manager
	metrics      *metrics.Metrics
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newFixture serves the API backed by real clients talking to the mock upstream.
// Passing false for collaborators leaves them disabled.
func newFixture(t *testing.T, collaborators bool) *fixture {
	t.Helper()
	logger := testLogger()

	upstream := mockapi.NewServer(logger, mockapi.Options{})
	upstreamHTTP := httptest.NewServer(upstream)
	t.Cleanup(upstreamHTTP.Close)
	baseURL := upstreamHTTP.URL + "/v1"

	cfg := config.Default()
	cfg.HTTP.MaxBodyBytes = 1 << 20

	gate, err := vad.NewProcessor(vad.DefaultConfig())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	appMetrics := metrics.NewMetrics(registry)

	deps := Dependencies{
		Gate:     gate,
		Metrics:  appMetrics,
		Gatherer: registry,
	}
	sessionDeps := session.Dependencies{Gate: gate, Observer: appMetrics}

	if collaborators {
		deps.Transcriber, err = transcription.NewClient(transcription.Config{
			BaseURL:       baseURL,
			Model:         "whisper-large-v3-turbo",
			Language:      "en",
			Timeout:       5 * time.Second,
			MaxConcurrent: 4,
		})
		require.NoError(t, err)

		deps.LLM, err = llm.NewClient(llm.Config{
			BaseURL:     baseURL,
			Model:       "local-model",
			Temperature: 0.7,
			MaxTokens:   100,
			Timeout:     5 * time.Second,
		})
		require.NoError(t, err)

		deps.TTS, err = tts.NewClient(tts.Config{
			BaseURL:   baseURL,
			Model:     "tts-1",
			Timeout:   5 * time.Second,
			CacheSize: 8,
		})
		require.NoError(t, err)

		sessionDeps.Transcriber = deps.Transcriber
		sessionDeps.Chat = deps.LLM
		sessionDeps.Synthesizer = deps.TTS
	}

	manager, err := session.NewManager(logger, session.Config{
		SystemPrompt: "You are a test assistant.",
		Language:     "en",
		HistorySize:  10,
	}, sessionDeps)
	require.NoError(t, err)
	t.Cleanup(manager.Stop)
	deps.Sessions = manager

	server, err := NewHTTPServer(cfg, logger, deps)
	require.NoError(t, err)

	srv := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		server.cancel()
		srv.Close()
	})

	return &fixture{
		server:       server,
		http:         srv,
		upstream:     upstream,
		upstreamHTTP: upstreamHTTP,
		sessions:     manager,
		metrics:      appMetrics,
	}
}

// speech returns a loud tone long enough to pass the speech gate
func speech(seconds float64) *audio.Segment {
	n := int(seconds * audio.DefaultSampleRate)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.5 * math.Sin(2*math.Pi*220*float64(i)/audio.DefaultSampleRate))
	}
	return &audio.Segment{Samples: samples, SampleRate: audio.DefaultSampleRate, Channels: 1}
}
