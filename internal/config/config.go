package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file
const (
	EnvTranscriptionAPIKey = "TRANSCRIPTION_API_KEY"
	EnvLLMAPIKey           = "LLM_API_KEY"
	EnvTTSAPIKey           = "TTS_API_KEY"
)

// Config represents the complete service configuration
type Config struct {
	HTTP          HTTPConfig          `yaml:"http" json:"http"`
	Audio         AudioConfig         `yaml:"audio" json:"audio"`
	VAD           VADConfig           `yaml:"vad" json:"vad"`
	Transcription TranscriptionConfig `yaml:"transcription" json:"transcription"`
	LLM           LLMConfig           `yaml:"llm" json:"llm"`
	TTS           TTSConfig           `yaml:"tts" json:"tts"`
	Session       SessionConfig       `yaml:"session" json:"session"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Address         string `yaml:"address" json:"address"`
	Port            int    `yaml:"port" json:"port"`
	MaxBodyBytes    int64  `yaml:"max_body_bytes" json:"max_body_bytes"`
	ReadTimeout     int    `yaml:"read_timeout" json:"read_timeout"`         // seconds
	WriteTimeout    int    `yaml:"write_timeout" json:"write_timeout"`       // seconds
	IdleTimeout     int    `yaml:"idle_timeout" json:"idle_timeout"`         // seconds
	ShutdownTimeout int    `yaml:"shutdown_timeout" json:"shutdown_timeout"` // seconds
}

// AudioConfig contains segment handling parameters
type AudioConfig struct {
	SampleRate         int     `yaml:"sample_rate" json:"sample_rate"` // default for raw payloads
	Channels           int     `yaml:"channels" json:"channels"`
	MaxSegmentDuration float64 `yaml:"max_segment_duration" json:"max_segment_duration"` // seconds
	StreamTimeout      int     `yaml:"stream_timeout" json:"stream_timeout"`             // seconds without frames before a stream segment is dropped
}

// VADConfig contains speech gate configuration
type VADConfig struct {
	PositiveThreshold float32 `yaml:"positive_speech_threshold" json:"positive_speech_threshold"`
	MinSpeechFrames   int     `yaml:"min_speech_frames" json:"min_speech_frames"`
	FrameSize         int     `yaml:"frame_size" json:"frame_size"` // samples
	Smoothing         float32 `yaml:"smoothing" json:"smoothing"`
	EnergyScale       float64 `yaml:"energy_scale" json:"energy_scale"`
}

// TranscriptionConfig contains speech-to-text API configuration
type TranscriptionConfig struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	BaseURL        string  `yaml:"base_url" json:"base_url"`
	APIKey         string  `yaml:"api_key" json:"api_key,omitempty"`
	Model          string  `yaml:"model" json:"model"`
	Language       string  `yaml:"language" json:"language"`
	ResponseFormat string  `yaml:"response_format" json:"response_format"`
	Temperature    float32 `yaml:"temperature" json:"temperature"`
	Timeout        int     `yaml:"timeout" json:"timeout"` // seconds
	MaxRetries     int     `yaml:"max_retries" json:"max_retries"`
	MaxConcurrent  int     `yaml:"max_concurrent" json:"max_concurrent"`
	RateLimit      float64 `yaml:"rate_limit" json:"rate_limit"` // requests per second, 0 disables
}

// LLMConfig contains chat completion API configuration
type LLMConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	BaseURL      string  `yaml:"base_url" json:"base_url"`
	APIKey       string  `yaml:"api_key" json:"api_key,omitempty"`
	Model        string  `yaml:"model" json:"model"`
	Temperature  float32 `yaml:"temperature" json:"temperature"`
	MaxTokens    int     `yaml:"max_tokens" json:"max_tokens"`
	Timeout      int     `yaml:"timeout" json:"timeout"` // seconds
	MaxRetries   int     `yaml:"max_retries" json:"max_retries"`
	SystemPrompt string  `yaml:"system_prompt" json:"system_prompt"`
}

// VoiceConfig describes one synthesis voice
type VoiceConfig struct {
	ID         string `yaml:"id" json:"id"`
	Upstream   string `yaml:"upstream" json:"upstream"`
	SampleRate int    `yaml:"sample_rate" json:"sample_rate"`
}

// TTSConfig contains text-to-speech API configuration
type TTSConfig struct {
	Enabled      bool          `yaml:"enabled" json:"enabled"`
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	APIKey       string        `yaml:"api_key" json:"api_key,omitempty"`
	Model        string        `yaml:"model" json:"model"`
	Voices       []VoiceConfig `yaml:"voices" json:"voices"`
	DefaultVoice string        `yaml:"default_voice" json:"default_voice"`
	Speed        float64       `yaml:"speed" json:"speed"`
	Timeout      int           `yaml:"timeout" json:"timeout"` // seconds
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	CacheSize    int           `yaml:"cache_size" json:"cache_size"`
}

// SessionConfig contains conversation session configuration
type SessionConfig struct {
	Timeout         int `yaml:"timeout" json:"timeout"`                   // seconds
	CleanupInterval int `yaml:"cleanup_interval" json:"cleanup_interval"` // seconds
	MaxSessions     int `yaml:"max_sessions" json:"max_sessions"`
	HistorySize     int `yaml:"history_size" json:"history_size"`
	StageTimeout    int `yaml:"stage_timeout" json:"stage_timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	var c Config
	c.ApplyDefaults()
	return &c
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyDefaults()
	config.ApplyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// LoadDotEnv loads environment files into the process environment.
// Missing files are not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}

	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	return nil
}

// ApplyEnv overrides API keys with values from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvTranscriptionAPIKey); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv(EnvLLMAPIKey); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv(EnvTTSAPIKey); v != "" {
		c.TTS.APIKey = v
	}
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.MaxBodyBytes == 0 {
		c.HTTP.MaxBodyBytes = 32 << 20
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 30
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 120
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10
	}

	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.MaxSegmentDuration == 0 {
		c.Audio.MaxSegmentDuration = 30
	}
	if c.Audio.StreamTimeout == 0 {
		c.Audio.StreamTimeout = 10
	}

	if c.VAD.PositiveThreshold == 0 {
		c.VAD.PositiveThreshold = 0.8
	}
	if c.VAD.MinSpeechFrames == 0 {
		c.VAD.MinSpeechFrames = 5
	}
	if c.VAD.FrameSize == 0 {
		c.VAD.FrameSize = 1536
	}
	if c.VAD.Smoothing == 0 {
		c.VAD.Smoothing = 0.5
	}
	if c.VAD.EnergyScale == 0 {
		c.VAD.EnergyScale = 0.1
	}

	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = "whisper-large-v3-turbo"
	}
	if c.Transcription.Language == "" {
		c.Transcription.Language = "en"
	}
	if c.Transcription.ResponseFormat == "" {
		c.Transcription.ResponseFormat = "json"
	}
	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 30
	}
	if c.Transcription.MaxConcurrent == 0 {
		c.Transcription.MaxConcurrent = 10
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:8000/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "local-model"
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.7
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1000
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60
	}
	if c.LLM.SystemPrompt == "" {
		c.LLM.SystemPrompt = "You are a helpful voice assistant. Keep your answers short and conversational."
	}

	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = "http://localhost:5000/v1"
	}
	if c.TTS.Model == "" {
		c.TTS.Model = "tts-1"
	}
	if len(c.TTS.Voices) == 0 {
		c.TTS.Voices = []VoiceConfig{
			{ID: "en_US-hfc_female-medium", SampleRate: 22050},
			{ID: "en_US-hfc_male-medium", SampleRate: 22050},
			{ID: "GLaDOS", SampleRate: 22050},
		}
	}
	if c.TTS.DefaultVoice == "" {
		c.TTS.DefaultVoice = c.TTS.Voices[0].ID
	}
	if c.TTS.Speed == 0 {
		c.TTS.Speed = 1.0
	}
	if c.TTS.Timeout == 0 {
		c.TTS.Timeout = 60
	}
	if c.TTS.CacheSize == 0 {
		c.TTS.CacheSize = 128
	}

	if c.Session.Timeout == 0 {
		c.Session.Timeout = 1800
	}
	if c.Session.CleanupInterval == 0 {
		c.Session.CleanupInterval = 30
	}
	if c.Session.HistorySize == 0 {
		c.Session.HistorySize = 20
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm config: %w", err)
	}

	if err := c.TTS.Validate(); err != nil {
		return fmt.Errorf("tts config: %w", err)
	}

	if err := c.Session.Validate(); err != nil {
		return fmt.Errorf("session config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.MaxBodyBytes < 1024 {
		return fmt.Errorf("max_body_bytes must be at least 1024, got %d", h.MaxBodyBytes)
	}

	if h.ReadTimeout < 1 || h.WriteTimeout < 1 || h.IdleTimeout < 1 {
		return fmt.Errorf("read_timeout, write_timeout and idle_timeout must be at least 1 second")
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate < 1 || a.SampleRate > 384000 {
		return fmt.Errorf("sample_rate must be between 1 and 384000, got %d", a.SampleRate)
	}

	if a.Channels < 1 || a.Channels > 8 {
		return fmt.Errorf("channels must be between 1 and 8, got %d", a.Channels)
	}

	if a.MaxSegmentDuration <= 0 {
		return fmt.Errorf("max_segment_duration must be positive, got %f", a.MaxSegmentDuration)
	}

	if a.StreamTimeout < 1 {
		return fmt.Errorf("stream_timeout must be at least 1 second, got %d", a.StreamTimeout)
	}

	return nil
}

// Validate validates speech gate configuration
func (v *VADConfig) Validate() error {
	if v.PositiveThreshold <= 0 || v.PositiveThreshold > 1 {
		return fmt.Errorf("positive_speech_threshold must be in (0, 1], got %f", v.PositiveThreshold)
	}

	if v.MinSpeechFrames < 1 {
		return fmt.Errorf("min_speech_frames must be at least 1, got %d", v.MinSpeechFrames)
	}

	if v.FrameSize < 256 || v.FrameSize > 8192 {
		return fmt.Errorf("frame_size must be between 256 and 8192 samples, got %d", v.FrameSize)
	}

	if v.Smoothing <= 0 || v.Smoothing > 1 {
		return fmt.Errorf("smoothing must be in (0, 1], got %f", v.Smoothing)
	}

	if v.EnergyScale <= 0 {
		return fmt.Errorf("energy_scale must be positive, got %f", v.EnergyScale)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if t.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if t.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	if t.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative, got %f", t.RateLimit)
	}

	validFormats := map[string]bool{"json": true, "text": true, "verbose_json": true}
	if !validFormats[t.ResponseFormat] {
		return fmt.Errorf("response_format must be 'json', 'text' or 'verbose_json', got '%s'", t.ResponseFormat)
	}

	return nil
}

// Validate validates chat completion configuration
func (l *LLMConfig) Validate() error {
	if !l.Enabled {
		return nil
	}

	if l.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if l.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}

	if l.Temperature < 0 || l.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", l.Temperature)
	}

	if l.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be at least 1, got %d", l.MaxTokens)
	}

	if l.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", l.Timeout)
	}

	if l.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", l.MaxRetries)
	}

	return nil
}

// Validate validates text-to-speech configuration
func (t *TTSConfig) Validate() error {
	if !t.Enabled {
		return nil
	}

	if t.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if len(t.Voices) == 0 {
		return fmt.Errorf("at least one voice is required")
	}

	known := false
	seen := make(map[string]bool, len(t.Voices))
	for _, v := range t.Voices {
		if v.ID == "" {
			return fmt.Errorf("voice id cannot be empty")
		}
		if seen[v.ID] {
			return fmt.Errorf("duplicate voice id '%s'", v.ID)
		}
		seen[v.ID] = true
		if v.SampleRate < 0 {
			return fmt.Errorf("voice '%s': sample_rate cannot be negative", v.ID)
		}
		if v.ID == t.DefaultVoice {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("default_voice '%s' is not a configured voice", t.DefaultVoice)
	}

	if t.Speed < 0.25 || t.Speed > 4.0 {
		return fmt.Errorf("speed must be between 0.25 and 4.0, got %f", t.Speed)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.CacheSize < 0 {
		return fmt.Errorf("cache_size cannot be negative, got %d", t.CacheSize)
	}

	return nil
}

// Validate validates session configuration
func (s *SessionConfig) Validate() error {
	if s.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", s.Timeout)
	}

	if s.CleanupInterval < 1 {
		return fmt.Errorf("cleanup_interval must be at least 1 second, got %d", s.CleanupInterval)
	}

	if s.MaxSessions < 0 {
		return fmt.Errorf("max_sessions cannot be negative, got %d", s.MaxSessions)
	}

	if s.HistorySize < 0 {
		return fmt.Errorf("history_size cannot be negative, got %d", s.HistorySize)
	}

	if s.StageTimeout < 0 {
		return fmt.Errorf("stage_timeout cannot be negative, got %d", s.StageTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout or stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// Redacted returns a copy of the configuration with secrets removed
func (c *Config) Redacted() Config {
	out := *c
	out.TTS.Voices = append([]VoiceConfig(nil), c.TTS.Voices...)
	out.Transcription.APIKey = ""
	out.LLM.APIKey = ""
	out.TTS.APIKey = ""
	return out
}

// GetAddress returns the listen address of the HTTP server
func (h *HTTPConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", h.Address, h.Port)
}

// GetReadTimeoutDuration returns the read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeoutDuration() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeoutDuration returns the write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeoutDuration() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetIdleTimeoutDuration returns the idle timeout as a time.Duration
func (h *HTTPConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(h.IdleTimeout) * time.Second
}

// GetShutdownTimeoutDuration returns the graceful shutdown timeout as a time.Duration
func (h *HTTPConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// GetMaxSegmentDuration returns the maximum segment duration as a time.Duration
func (a *AudioConfig) GetMaxSegmentDuration() time.Duration {
	return time.Duration(a.MaxSegmentDuration * float64(time.Second))
}

// GetStreamTimeoutDuration returns the stream timeout as a time.Duration
func (a *AudioConfig) GetStreamTimeoutDuration() time.Duration {
	return time.Duration(a.StreamTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the chat completion timeout as a time.Duration
func (l *LLMConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}

// GetTimeoutDuration returns the synthesis timeout as a time.Duration
func (t *TTSConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetTimeoutDuration returns the session idle timeout as a time.Duration
func (s *SessionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetCleanupIntervalDuration returns the cleanup interval as a time.Duration
func (s *SessionConfig) GetCleanupIntervalDuration() time.Duration {
	return time.Duration(s.CleanupInterval) * time.Second
}

// GetStageTimeoutDuration returns the per-stage timeout as a time.Duration
func (s *SessionConfig) GetStageTimeoutDuration() time.Duration {
	return time.Duration(s.StageTimeout) * time.Second
}
