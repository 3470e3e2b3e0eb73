package mockapi

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
)

const (
	// DefaultTranscript is returned for every transcription request
	DefaultTranscript = "Hello, how are you today?"

	// DefaultSpeechRate is the sample rate of synthesized PCM
	DefaultSpeechRate = 22050

	maxUploadSize  = 32 << 20
	toneFrequency  = 440.0
	toneAmplitude  = 0.3
	msPerCharacter = 50
	minSpeech      = 200 * time.Millisecond
	maxSpeech      = 5 * time.Second
)

// Options configures the mock responses
type Options struct {
	Transcript string        // Text returned by the transcription endpoint
	SpeechRate int           // Sample rate of generated speech
	Latency    time.Duration // Artificial delay added to every response
}

// Stats counts handled requests per endpoint
type Stats struct {
	Transcriptions  uint64 `json:"transcriptions"`
	ChatCompletions uint64 `json:"chat_completions"`
	Completions     uint64 `json:"completions"`
	Speech          uint64 `json:"speech"`
}

// Server serves the mock API
type Server struct {
	logger *slog.Logger
	opts   Options
	mux    *http.ServeMux

	transcriptions  atomic.Uint64
	chatCompletions atomic.Uint64
	completions     atomic.Uint64
	speech          atomic.Uint64
}

// completionResponse mirrors the text completion response with usage always present
type completionResponse struct {
	ID      string                    `json:"id"`
	Object  string                    `json:"object"`
	Created int64                     `json:"created"`
	Model   string                    `json:"model"`
	Choices []openai.CompletionChoice `json:"choices"`
	Usage   openai.Usage              `json:"usage"`
}

// NewServer creates a mock API server
func NewServer(logger *slog.Logger, opts Options) *Server {
	if opts.Transcript == "" {
		opts.Transcript = DefaultTranscript
	}
	if opts.SpeechRate <= 0 {
		opts.SpeechRate = DefaultSpeechRate
	}

	s := &Server{
		logger: logger,
		opts:   opts,
		mux:    http.NewServeMux(),
	}

	s.mux.HandleFunc("/v1/audio/transcriptions", s.handleTranscription)
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletion)
	s.mux.HandleFunc("/v1/completions", s.handleCompletion)
	s.mux.HandleFunc("/v1/audio/speech", s.handleSpeech)

	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// GetStats returns the number of handled requests
func (s *Server) GetStats() Stats {
	return Stats{
		Transcriptions:  s.transcriptions.Load(),
		ChatCompletions: s.chatCompletions.Load(),
		Completions:     s.completions.Load(),
		Speech:          s.speech.Load(),
	}
}

func (s *Server) handleTranscription(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "error parsing form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "error getting audio file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "error reading audio file")
		return
	}

	info, err := audio.GetWAVInfo(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid audio file: %v", err))
		return
	}

	s.transcriptions.Add(1)
	s.logger.Info("Transcription request received",
		slog.String("filename", header.Filename),
		slog.String("model", r.FormValue("model")),
		slog.String("language", r.FormValue("language")),
		slog.Int("audio_size", len(data)),
		slog.Float64("duration", info.Duration),
	)

	s.delay()

	if r.FormValue("response_format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, s.opts.Transcript)
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "en"
	}

	writeJSON(w, http.StatusOK, openai.AudioResponse{
		Task:     "transcribe",
		Language: language,
		Duration: info.Duration,
		Text:     s.opts.Transcript,
	})
}

func (s *Server) handleChatCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var request openai.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(request.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages cannot be empty")
		return
	}

	var prompt string
	for _, message := range request.Messages {
		if message.Role == openai.ChatMessageRoleUser {
			prompt = message.Content
		}
	}
	reply := "You said: " + prompt

	s.chatCompletions.Add(1)
	s.logger.Info("Chat completion request received",
		slog.String("model", request.Model),
		slog.Int("messages", len(request.Messages)),
	)

	s.delay()

	promptTokens := countTokens(request.Messages)
	completionTokens := len(strings.Fields(reply))

	writeJSON(w, http.StatusOK, openai.ChatCompletionResponse{
		ID:      fmt.Sprintf("chatcmpl-mock-%d", s.chatCompletions.Load()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   request.Model,
		Choices: []openai.ChatCompletionChoice{{
			Index: 0,
			Message: openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: reply,
			},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var request openai.CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prompt, ok := request.Prompt.(string)
	if !ok || prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt must be a non-empty string")
		return
	}

	text := " and that is all there is to say."

	s.completions.Add(1)
	s.logger.Info("Completion request received",
		slog.String("model", request.Model),
		slog.Int("prompt_length", len(prompt)),
	)

	s.delay()

	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(text))

	writeJSON(w, http.StatusOK, completionResponse{
		ID:      fmt.Sprintf("cmpl-mock-%d", s.completions.Load()),
		Object:  "text_completion",
		Created: time.Now().Unix(),
		Model:   request.Model,
		Choices: []openai.CompletionChoice{{
			Text:         text,
			Index:        0,
			FinishReason: "stop",
		}},
		Usage: openai.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var request openai.CreateSpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(request.Input) == "" {
		writeError(w, http.StatusBadRequest, "input cannot be empty")
		return
	}

	if request.ResponseFormat != "" && request.ResponseFormat != openai.SpeechResponseFormatPcm {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported response_format: %s", request.ResponseFormat))
		return
	}

	s.speech.Add(1)
	s.logger.Info("Speech request received",
		slog.String("model", string(request.Model)),
		slog.String("voice", string(request.Voice)),
		slog.Int("input_length", len(request.Input)),
	)

	s.delay()

	w.Header().Set("Content-Type", "audio/pcm")
	_, _ = w.Write(Tone(speechDuration(request.Input), s.opts.SpeechRate))
}

func (s *Server) delay() {
	if s.opts.Latency > 0 {
		time.Sleep(s.opts.Latency)
	}
}

// speechDuration scales the generated audio with the input length
func speechDuration(input string) time.Duration {
	d := time.Duration(len(input)*msPerCharacter) * time.Millisecond
	if d < minSpeech {
		return minSpeech
	}
	if d > maxSpeech {
		return maxSpeech
	}
	return d
}

// Tone returns a 440Hz sine tone as little-endian 16-bit PCM
func Tone(duration time.Duration, sampleRate int) []byte {
	n := int(duration.Seconds() * float64(sampleRate))
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := toneAmplitude * math.Sin(2*math.Pi*toneFrequency*float64(i)/float64(sampleRate))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(audio.QuantizeSample(float32(v))))
	}
	return out
}

func countTokens(messages []openai.ChatCompletionMessage) int {
	n := 0
	for _, message := range messages {
		n += len(strings.Fields(message.Content))
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    "invalid_request_error",
		},
	})
}
