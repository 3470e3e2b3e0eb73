package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sashabaranov/go-openai"

	"github.com/skypro1111/voice-assistant-service/internal/audio"
	"github.com/skypro1111/voice-assistant-service/internal/retry"
)

var (
	// ErrUnknownVoice is returned when the requested voice is not registered
	ErrUnknownVoice = errors.New("unknown voice")

	// ErrEmptyText is returned when there is nothing to synthesize
	ErrEmptyText = errors.New("text cannot be empty")
)

// DefaultSampleRate is the output rate of the medium quality voices
const DefaultSampleRate = 22050

// Voice is a selectable synthesis voice
type Voice struct {
	ID         string `json:"id" yaml:"id"`
	Upstream   string `json:"-" yaml:"upstream"` // Voice name sent to the API, defaults to ID
	SampleRate int    `json:"sample_rate" yaml:"sample_rate"`
}

// DefaultVoices returns the built-in voice registry
func DefaultVoices() []Voice {
	return []Voice{
		{ID: "en_US-hfc_female-medium", SampleRate: DefaultSampleRate},
		{ID: "en_US-hfc_male-medium", SampleRate: DefaultSampleRate},
		{ID: "GLaDOS", SampleRate: DefaultSampleRate},
	}
}

// Config contains speech synthesis client configuration
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Voices       []Voice
	DefaultVoice string
	Speed        float64
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	CacheSize    int // Number of cached utterances, 0 disables caching
}

// Speech is a synthesized utterance
type Speech struct {
	Voice         string        `json:"voice"`
	Text          string        `json:"text"`
	WAV           []byte        `json:"-"`
	SampleRate    int           `json:"sample_rate"`
	Duration      float64       `json:"duration_seconds"`
	SynthesisTime time.Duration `json:"synthesis_time"`
	Cached        bool          `json:"cached"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests  uint64        `json:"total_requests"`
	FailedRequests uint64        `json:"failed_requests"`
	CacheHits      uint64        `json:"cache_hits"`
	CachedItems    int           `json:"cached_items"`
	AvgSynthesis   time.Duration `json:"avg_synthesis_time"`
}

// Client synthesizes speech through an OpenAI-compatible /audio/speech API
type Client struct {
	config Config
	api    *openai.Client
	policy retry.Policy
	voices map[string]Voice
	order  []string
	cache  *lru.Cache[string, *Speech]

	// Statistics
	totalRequests  uint64
	failedRequests uint64
	cacheHits      uint64
	avgSynthesis   time.Duration

	mu sync.RWMutex
}

// NewClient creates a speech synthesis client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	if len(config.Voices) == 0 {
		config.Voices = DefaultVoices()
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	voices := make(map[string]Voice, len(config.Voices))
	order := make([]string, 0, len(config.Voices))
	for _, v := range config.Voices {
		if v.ID == "" {
			return nil, fmt.Errorf("voice ID cannot be empty")
		}
		if _, exists := voices[v.ID]; exists {
			return nil, fmt.Errorf("duplicate voice: %s", v.ID)
		}
		if v.Upstream == "" {
			v.Upstream = v.ID
		}
		if v.SampleRate <= 0 {
			v.SampleRate = DefaultSampleRate
		}
		voices[v.ID] = v
		order = append(order, v.ID)
	}

	if config.DefaultVoice == "" {
		config.DefaultVoice = order[0]
	}
	if _, ok := voices[config.DefaultVoice]; !ok {
		return nil, fmt.Errorf("default voice %q: %w", config.DefaultVoice, ErrUnknownVoice)
	}

	var cache *lru.Cache[string, *Speech]
	if config.CacheSize > 0 {
		var err error
		cache, err = lru.New[string, *Speech](config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create speech cache: %w", err)
		}
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	apiConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	apiConfig.HTTPClient = &http.Client{Timeout: config.Timeout}

	return &Client{
		config: config,
		api:    openai.NewClientWithConfig(apiConfig),
		policy: retry.Policy{
			MaxRetries:  config.MaxRetries,
			BaseBackoff: config.RetryBackoff,
			MaxBackoff:  30 * time.Second,
		},
		voices: voices,
		order:  order,
		cache:  cache,
	}, nil
}

// Voices returns the registered voices in configuration order
func (c *Client) Voices() []Voice {
	voices := make([]Voice, 0, len(c.order))
	for _, id := range c.order {
		voices = append(voices, c.voices[id])
	}
	return voices
}

// DefaultVoice returns the voice used when none is requested
func (c *Client) DefaultVoice() string {
	return c.config.DefaultVoice
}

// HasVoice reports whether a voice is registered
func (c *Client) HasVoice(id string) bool {
	_, ok := c.voices[id]
	return ok
}

// Synthesize converts text to a mono 16-bit WAV stream. An empty voiceID
// selects the default voice.
func (c *Client) Synthesize(ctx context.Context, text, voiceID string) (*Speech, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	if voiceID == "" {
		voiceID = c.config.DefaultVoice
	}
	voice, ok := c.voices[voiceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVoice, voiceID)
	}

	key := voice.ID + "\x00" + text
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			c.recordCacheHit()
			hit := *cached
			hit.Cached = true
			return &hit, nil
		}
	}

	startTime := time.Now()
	var pcm []byte
	_, err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		pcm, err = c.fetchPCM(ctx, text, voice)
		return err
	})
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("speech synthesis %w", err)
	}

	samples, err := audio.Float32FromPCM16LE(pcm)
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("invalid speech audio: %w", err)
	}

	speech := &Speech{
		Voice:         voice.ID,
		Text:          text,
		WAV:           audio.EncodeWAV(samples, 1, voice.SampleRate),
		SampleRate:    voice.SampleRate,
		Duration:      float64(len(samples)) / float64(voice.SampleRate),
		SynthesisTime: time.Since(startTime),
	}

	if c.cache != nil {
		c.cache.Add(key, speech)
	}
	c.recordSuccess(speech.SynthesisTime)

	return speech, nil
}

func (c *Client) fetchPCM(ctx context.Context, text string, voice Voice) ([]byte, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(c.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(voice.Upstream),
		ResponseFormat: openai.SpeechResponseFormat("pcm"),
		Speed:          c.config.Speed,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	pcm, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}

	return pcm, nil
}

func (c *Client) recordSuccess(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	if c.avgSynthesis == 0 {
		c.avgSynthesis = elapsed
	} else {
		c.avgSynthesis = (c.avgSynthesis + elapsed) / 2
	}
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.failedRequests++
}

func (c *Client) recordCacheHit() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.cacheHits++
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cached := 0
	if c.cache != nil {
		cached = c.cache.Len()
	}

	return ClientStats{
		TotalRequests:  c.totalRequests,
		FailedRequests: c.failedRequests,
		CacheHits:      c.cacheHits,
		CachedItems:    cached,
		AvgSynthesis:   c.avgSynthesis,
	}
}
