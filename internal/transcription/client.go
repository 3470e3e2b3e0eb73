package transcription

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/skypro1111/voice-assistant-service/internal/retry"
)

// ErrClientClosed is returned for requests made after Close
var ErrClientClosed = errors.New("transcription client is closed")

// Client provides access to an OpenAI-compatible /audio/transcriptions API
type Client struct {
	config    Config
	api       *openai.Client
	policy    retry.Policy
	limiter   *rate.Limiter
	semaphore chan struct{} // Concurrency limit
	closed    bool

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// Config contains transcription client configuration
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	Language       string
	ResponseFormat string // "json" or "text"
	Temperature    float32
	Timeout        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	MaxConcurrent  int
	RateLimit      float64 // Requests per second, 0 disables
}

// Request is one segment to transcribe
type Request struct {
	Audio    []byte // Encoded WAV stream
	Filename string
	Language string // Overrides the configured language
	Prompt   string
}

// Response represents a finished transcription
type Response struct {
	Text              string        `json:"text"`
	Language          string        `json:"language,omitempty"`
	Duration          float64       `json:"duration,omitempty"`
	TranscriptionTime time.Duration `json:"transcription_time"`
	Retries           int           `json:"retries"`
	ProcessedAt       time.Time     `json:"processed_at"`
}

// ClientStats represents client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// NewClient creates a new transcription client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.RetryBackoff <= 0 {
		config.RetryBackoff = time.Second
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 10
	}

	if config.ResponseFormat == "" {
		config.ResponseFormat = string(openai.AudioResponseFormatJSON)
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	apiConfig.BaseURL = strings.TrimSuffix(config.BaseURL, "/")
	apiConfig.HTTPClient = &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}

	return &Client{
		config: config,
		api:    openai.NewClientWithConfig(apiConfig),
		policy: retry.Policy{
			MaxRetries:  config.MaxRetries,
			BaseBackoff: config.RetryBackoff,
			MaxBackoff:  30 * time.Second,
		},
		limiter:   rate.NewLimiter(limit, 1),
		semaphore: make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe sends an encoded segment for transcription
func (c *Client) Transcribe(ctx context.Context, request *Request) (*Response, error) {
	if len(request.Audio) == 0 {
		return nil, fmt.Errorf("audio cannot be empty")
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, ErrClientClosed
	}

	// Acquire semaphore for concurrency limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var result openai.AudioResponse
	retries, err := c.policy.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		resp, err := c.api.CreateTranscription(ctx, c.buildRequest(request))
		if err != nil {
			return err
		}
		result = resp
		return nil
	})
	c.addRetries(retries)

	if err != nil {
		c.incrementFailedRequests()
		return nil, fmt.Errorf("transcription %w", err)
	}

	elapsed := time.Since(startTime)
	c.incrementSuccessRequests()
	c.updateAvgResponseTime(elapsed)

	return &Response{
		Text:              strings.TrimSpace(result.Text),
		Language:          result.Language,
		Duration:          result.Duration,
		TranscriptionTime: elapsed,
		Retries:           retries,
		ProcessedAt:       time.Now(),
	}, nil
}

// buildRequest creates a fresh request so each attempt reads the audio from the start
func (c *Client) buildRequest(request *Request) openai.AudioRequest {
	filename := request.Filename
	if filename == "" {
		filename = "segment.wav"
	}

	language := request.Language
	if language == "" {
		language = c.config.Language
	}

	return openai.AudioRequest{
		Model:       c.config.Model,
		FilePath:    filename,
		Reader:      bytes.NewReader(request.Audio),
		Prompt:      request.Prompt,
		Temperature: c.config.Temperature,
		Language:    language,
		Format:      openai.AudioResponseFormat(c.config.ResponseFormat),
	}
}

// Statistics methods
func (c *Client) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *Client) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *Client) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *Client) addRetries(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries += uint64(n)
}

func (c *Client) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}

// Close waits for active requests to complete and rejects new ones
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	for i := 0; i < c.config.MaxConcurrent; i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}
