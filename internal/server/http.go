package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
	"github.com/skypro1111/voice-assistant-service/internal/config"
	"github.com/skypro1111/voice-assistant-service/internal/llm"
	"github.com/skypro1111/voice-assistant-service/internal/metrics"
	"github.com/skypro1111/voice-assistant-service/internal/protocol"
	"github.com/skypro1111/voice-assistant-service/internal/session"
	"github.com/skypro1111/voice-assistant-service/internal/transcription"
	"github.com/skypro1111/voice-assistant-service/internal/tts"
	"github.com/skypro1111/voice-assistant-service/internal/vad"
)

const (
	serviceName    = "voice-assistant-service"
	serviceVersion = "1.0.0"

	outputDataURL = "data_url"
)

// Dependencies are the components exposed over HTTP. Transcriber, LLM and TTS
// are nil when the corresponding collaborator is disabled.
type Dependencies struct {
	Sessions    *session.Manager
	Gate        *vad.Processor
	Transcriber *transcription.Client
	LLM         *llm.Client
	TTS         *tts.Client
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer
}

// HTTPServer provides the conversation API, the segment stream and monitoring endpoints
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	deps     Dependencies
	upgrader websocket.Upgrader

	// Open streams are bound to ctx and end when the server stops
	ctx     context.Context
	cancel  context.CancelFunc
	streams atomic.Int64

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, deps Dependencies) (*HTTPServer, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}

	if deps.Metrics == nil {
		return nil, fmt.Errorf("metrics are required")
	}

	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}

	ctx, cancel := context.WithCancel(context.Background())

	h := &HTTPServer{
		logger: logger,
		config: cfg,
		deps:   deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         cfg.HTTP.GetAddress(),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.GetReadTimeoutDuration(),
		WriteTimeout: cfg.HTTP.GetWriteTimeoutDuration(),
		IdleTimeout:  cfg.HTTP.GetIdleTimeoutDuration(),
	}

	return h, nil
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Monitoring
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))
	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Sessions
	mux.HandleFunc("/sessions", h.withMetrics("/sessions", h.handleSessions))
	mux.HandleFunc("/sessions/", h.withMetrics("/sessions/{id}", h.handleSessionDetail))

	// Audio and conversation API
	mux.HandleFunc("/v1/encode", h.withMetrics("/v1/encode", h.handleEncode))
	mux.HandleFunc("/v1/transcribe", h.withMetrics("/v1/transcribe", h.handleTranscribe))
	mux.HandleFunc("/v1/chat", h.withMetrics("/v1/chat", h.handleChat))
	mux.HandleFunc("/v1/completions", h.withMetrics("/v1/completions", h.handleCompletions))
	mux.HandleFunc("/v1/speak", h.withMetrics("/v1/speak", h.handleSpeak))
	mux.HandleFunc("/v1/voices", h.withMetrics("/v1/voices", h.handleVoices))
	mux.HandleFunc("/v1/converse", h.withMetrics("/v1/converse", h.handleConverse))

	// The stream handler hijacks the connection, so it is not wrapped
	mux.HandleFunc("/v1/stream", h.handleStream)

	mux.Handle("/metrics", promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{}))

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// Handler returns the request router
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Capture the status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.deps.Metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.deps.Metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	listener, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}

	h.logger.Info("Starting HTTP API server",
		slog.String("address", listener.Addr().String()),
	)

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server and closes open streams
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	h.cancel()

	return h.server.Shutdown(ctx)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "Voice Assistant Service",
		"version": serviceVersion,
		"endpoints": map[string]string{
			"GET /":                 "API documentation",
			"GET /health":           "Service health check",
			"GET /config":           "Service configuration without secrets",
			"GET /stats":            "Service statistics",
			"GET /sessions":         "List conversation sessions",
			"POST /sessions":        "Create a conversation session",
			"GET /sessions/{id}":    "Session details with history",
			"DELETE /sessions/{id}": "End a conversation session",
			"POST /v1/encode":       "Encode a segment as WAV (?output=data_url for JSON)",
			"POST /v1/transcribe":   "Transcribe a segment",
			"POST /v1/chat":         "Chat completion",
			"POST /v1/completions":  "Text completion",
			"POST /v1/speak":        "Synthesize speech",
			"GET /v1/voices":        "List synthesis voices",
			"POST /v1/converse":     "Run a full conversation turn for a segment",
			"GET /v1/stream":        "WebSocket segment stream",
			"GET /metrics":          "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	})
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"sessions": map[string]interface{}{
				"status":          "running",
				"active_sessions": h.deps.Sessions.GetActiveSessionCount(),
			},
			"stream": map[string]interface{}{
				"status":      "running",
				"connections": h.streams.Load(),
			},
			"transcription": componentStatus(h.deps.Transcriber != nil),
			"llm":           componentStatus(h.deps.LLM != nil),
			"tts":           componentStatus(h.deps.TTS != nil),
		},
	})
}

func componentStatus(enabled bool) map[string]interface{} {
	status := "disabled"
	if enabled {
		status = "running"
	}
	return map[string]interface{}{"status": status, "enabled": enabled}
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	writeJSON(w, http.StatusOK, h.config.Redacted())
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"sessions":  h.deps.Sessions.GetStats(),
		"stream": map[string]interface{}{
			"connections": h.streams.Load(),
		},
	}

	if h.deps.Gate != nil {
		stats["vad"] = h.deps.Gate.GetStats()
	}
	if h.deps.Transcriber != nil {
		stats["transcription"] = h.deps.Transcriber.GetStats()
	}
	if h.deps.LLM != nil {
		stats["llm"] = h.deps.LLM.GetStats()
	}
	if h.deps.TTS != nil {
		stats["tts"] = h.deps.TTS.GetStats()
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions := h.deps.Sessions.GetAllSessions()
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"total_sessions": len(sessions),
			"timestamp":      time.Now().UTC(),
			"sessions":       sessions,
		})

	case http.MethodPost:
		var request struct {
			ID string `json:"id"`
			session.Options
		}
		if r.ContentLength != 0 {
			if !h.decodeJSON(w, r, &request) {
				return
			}
		}

		if request.Voice != "" && h.deps.TTS != nil && !h.deps.TTS.HasVoice(request.Voice) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown voice: %s", request.Voice))
			return
		}

		sess, err := h.deps.Sessions.CreateSession(request.ID, request.Options)
		if err != nil {
			writeError(w, sessionErrorStatus(err), err.Error())
			return
		}

		writeJSON(w, http.StatusCreated, sess.GetSessionInfo())

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type sessionDetail struct {
	session.SessionInfo
	History []llm.Message `json:"history"`
}

// handleSessionDetail implements the /sessions/{id} endpoint
func (h *HTTPServer) handleSessionDetail(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "session ID required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sess, exists := h.deps.Sessions.GetSession(id)
		if !exists {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		writeJSON(w, http.StatusOK, sessionDetail{
			SessionInfo: sess.GetSessionInfo(),
			History:     sess.History(),
		})

	case http.MethodDelete:
		if !h.deps.Sessions.RemoveSession(id) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type encodeResponse struct {
	AudioURL   string  `json:"audio_url"`
	Duration   float64 `json:"duration_seconds"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Samples    int     `json:"samples"`
	SizeBytes  int     `json:"size_bytes"`
}

// handleEncode implements the /v1/encode endpoint
func (h *HTTPServer) handleEncode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	seg, ok := h.readSegment(w, r)
	if !ok {
		return
	}

	wav := seg.Encode()
	h.deps.Metrics.RecordEncoded(len(wav))

	if r.URL.Query().Get("output") == outputDataURL {
		writeJSON(w, http.StatusOK, encodeResponse{
			AudioURL:   audio.DataURL(wav),
			Duration:   seg.Duration().Seconds(),
			SampleRate: seg.SampleRate,
			Channels:   seg.Channels,
			Samples:    len(seg.Samples),
			SizeBytes:  len(wav),
		})
		return
	}

	writeWAV(w, wav)
}

type transcribeResponse struct {
	*transcription.Response
	Truncated bool `json:"truncated,omitempty"`
}

// handleTranscribe implements the /v1/transcribe endpoint
func (h *HTTPServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.deps.Transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "transcription is disabled")
		return
	}

	seg, ok := h.readSegment(w, r)
	if !ok {
		return
	}

	seg, truncated := audio.Truncate(seg, h.config.Audio.GetMaxSegmentDuration())

	query := r.URL.Query()
	response, err := h.deps.Transcriber.Transcribe(r.Context(), &transcription.Request{
		Audio:    seg.Encode(),
		Language: query.Get("language"),
		Prompt:   query.Get("prompt"),
	})
	if err != nil {
		h.upstreamError(w, r, "transcription", err)
		return
	}

	writeJSON(w, http.StatusOK, transcribeResponse{Response: response, Truncated: truncated})
}

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
	llm.Options
}

type completionRequest struct {
	Prompt string `json:"prompt"`
	llm.Options
}

type completionResponse struct {
	*llm.Completion
	Text string `json:"text"`
}

// handleChat implements the /v1/chat endpoint
func (h *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.deps.LLM == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is disabled")
		return
	}

	var request chatRequest
	if !h.decodeJSON(w, r, &request) {
		return
	}

	if len(request.Messages) == 0 {
		writeError(w, http.StatusBadRequest, llm.ErrNoMessages.Error())
		return
	}

	completion, err := h.deps.LLM.Chat(r.Context(), request.Messages, request.Options)
	if err != nil {
		h.upstreamError(w, r, "chat", err)
		return
	}

	writeJSON(w, http.StatusOK, completionResponse{
		Completion: completion,
		Text:       llm.ExtractResponseText(completion),
	})
}

// handleCompletions implements the /v1/completions endpoint
func (h *HTTPServer) handleCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.deps.LLM == nil {
		writeError(w, http.StatusServiceUnavailable, "completions are disabled")
		return
	}

	var request completionRequest
	if !h.decodeJSON(w, r, &request) {
		return
	}

	if request.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt cannot be empty")
		return
	}

	completion, err := h.deps.LLM.Complete(r.Context(), request.Prompt, request.Options)
	if err != nil {
		h.upstreamError(w, r, "completion", err)
		return
	}

	writeJSON(w, http.StatusOK, completionResponse{
		Completion: completion,
		Text:       llm.ExtractResponseText(completion),
	})
}

type speakRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Output string `json:"output"`
}

type speakResponse struct {
	Voice      string  `json:"voice"`
	Text       string  `json:"text"`
	AudioURL   string  `json:"audio_url"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration_seconds"`
	Cached     bool    `json:"cached"`
}

// handleSpeak implements the /v1/speak endpoint
func (h *HTTPServer) handleSpeak(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.deps.TTS == nil {
		writeError(w, http.StatusServiceUnavailable, "speech synthesis is disabled")
		return
	}

	var request speakRequest
	if !h.decodeJSON(w, r, &request) {
		return
	}

	speech, err := h.deps.TTS.Synthesize(r.Context(), request.Text, request.Voice)
	if err != nil {
		if errors.Is(err, tts.ErrEmptyText) || errors.Is(err, tts.ErrUnknownVoice) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.upstreamError(w, r, "speech synthesis", err)
		return
	}

	if request.Output == outputDataURL || r.URL.Query().Get("output") == outputDataURL {
		writeJSON(w, http.StatusOK, speakResponse{
			Voice:      speech.Voice,
			Text:       speech.Text,
			AudioURL:   audio.DataURL(speech.WAV),
			SampleRate: speech.SampleRate,
			Duration:   speech.Duration,
			Cached:     speech.Cached,
		})
		return
	}

	w.Header().Set("X-Voice", speech.Voice)
	writeWAV(w, speech.WAV)
}

// handleVoices implements the /v1/voices endpoint
func (h *HTTPServer) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if h.deps.TTS == nil {
		writeError(w, http.StatusServiceUnavailable, "speech synthesis is disabled")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"voices":  h.deps.TTS.Voices(),
		"default": h.deps.TTS.DefaultVoice(),
	})
}

// handleConverse implements the /v1/converse endpoint: one full turn for a
// segment within a session that is created on first use
func (h *HTTPServer) handleConverse(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	seg, ok := h.readSegment(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()

	sessionID := query.Get("session_id")
	if sessionID == "" {
		sessionID = r.Header.Get("X-Session-ID")
	}

	var segmentID uint32
	if v := query.Get("segment_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid segment_id")
			return
		}
		segmentID = uint32(id)
	}

	voice := query.Get("voice")
	if voice != "" && h.deps.TTS != nil && !h.deps.TTS.HasVoice(voice) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown voice: %s", voice))
		return
	}

	sess, err := h.deps.Sessions.CreateSession(sessionID, session.Options{
		Voice:    voice,
		Language: query.Get("language"),
	})
	if err != nil {
		writeError(w, sessionErrorStatus(err), err.Error())
		return
	}

	turn, err := h.deps.Sessions.ProcessSegment(r.Context(), sess.ID, seg, session.TurnOptions{
		SegmentID:  segmentID,
		SkipReply:  query.Get("reply") == "false",
		SkipSpeech: query.Get("speech") == "false",
	})
	if err != nil {
		writeError(w, sessionErrorStatus(err), err.Error())
		return
	}

	w.Header().Set("X-Session-ID", sess.ID)

	status := http.StatusOK
	if turn.FailedStage != "" {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, turn)
}

// readSegment reads and decodes a segment body, writing the error response on failure
func (h *HTTPServer) readSegment(w http.ResponseWriter, r *http.Request) (*audio.Segment, bool) {
	body, ok := h.readBody(w, r)
	if !ok {
		return nil, false
	}

	defaults := protocol.Format{SampleRate: h.config.Audio.SampleRate, Channels: h.config.Audio.Channels}
	seg, err := protocol.DecodeSegment(r.Header.Get("Content-Type"), r.URL.Query(), body, defaults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	return seg, true
}

func (h *HTTPServer) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.HTTP.MaxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit))
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}

	return body, true
}

func (h *HTTPServer) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body, ok := h.readBody(w, r)
	if !ok {
		return false
	}

	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}

	return true
}

func (h *HTTPServer) upstreamError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	h.logger.Error("Upstream request failed",
		slog.String("path", r.URL.Path),
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)

	status := http.StatusBadGateway
	if errors.Is(err, transcription.ErrClientClosed) {
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

func sessionErrorStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrTooManySessions):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadRequest
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeWAV(w http.ResponseWriter, wav []byte) {
	w.Header().Set("Content-Type", audio.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(wav)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}
