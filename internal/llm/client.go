package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/skypro1111/voice-assistant-service/internal/retry"
)

// Message roles
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// ErrNoMessages is returned for chat requests without messages
var ErrNoMessages = errors.New("at least one message is required")

// Config contains chat completion client configuration
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Options overrides configured request parameters; zero values keep the defaults
type Options struct {
	Model       string  `json:"model,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// Message is one chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewMessage creates a chat message
func NewMessage(role, content string) Message {
	return Message{Role: role, Content: content}
}

// Choice is one generated alternative. Chat completions set Message,
// text completions set Text.
type Choice struct {
	Index        int      `json:"index"`
	Message      *Message `json:"message,omitempty"`
	Text         string   `json:"text,omitempty"`
	FinishReason string   `json:"finish_reason,omitempty"`
}

// Usage reports token accounting
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the result of a chat or text completion
type Completion struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Model   string        `json:"model"`
	Choices []Choice      `json:"choices"`
	Usage   Usage         `json:"usage"`
	Latency time.Duration `json:"latency"`
}

// ExtractResponseText returns the main text of a completion: the first choice's
// message content for chat completions, its text otherwise, "" without choices
func ExtractResponseText(c *Completion) string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}

	if c.Choices[0].Message != nil {
		return c.Choices[0].Message.Content
	}
	return c.Choices[0].Text
}

// Client talks to an OpenAI-compatible chat completion API
type Client struct {
	config Config
	api    *openai.Client
	policy retry.Policy

	// Statistics
	totalRequests  uint64
	failedRequests uint64
	totalTokens    uint64
	avgLatency     time.Duration

	mu sync.RWMutex
}

// ClientStats represents client statistics
type ClientStats struct {
	Model          string        `json:"model"`
	TotalRequests  uint64        `json:"total_requests"`
	FailedRequests uint64        `json:"failed_requests"`
	TotalTokens    uint64        `json:"total_tokens"`
	AvgLatency     time.Duration `json:"avg_latency"`
}

// NewClient creates a chat completion client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
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
	}, nil
}

func (c *Client) resolve(opts Options) (string, float32, int) {
	model := c.config.Model
	if opts.Model != "" {
		model = opts.Model
	}

	temperature := c.config.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	maxTokens := c.config.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}

	return model, temperature, maxTokens
}

// Chat sends a chat completion request
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (*Completion, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	model, temperature, maxTokens := c.resolve(opts)

	request := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		request.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	startTime := time.Now()
	var resp openai.ChatCompletionResponse
	_, err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, request)
		return err
	})
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("chat completion %w", err)
	}

	completion := &Completion{
		ID:      resp.ID,
		Object:  resp.Object,
		Model:   resp.Model,
		Choices: make([]Choice, len(resp.Choices)),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
	}
	for i, choice := range resp.Choices {
		message := NewMessage(choice.Message.Role, choice.Message.Content)
		completion.Choices[i] = Choice{
			Index:        choice.Index,
			Message:      &message,
			FinishReason: string(choice.FinishReason),
		}
	}

	c.recordSuccess(completion)
	return completion, nil
}

// Complete sends a text completion request
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (*Completion, error) {
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}

	model, temperature, maxTokens := c.resolve(opts)

	request := openai.CompletionRequest{
		Model:       model,
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	startTime := time.Now()
	var resp openai.CompletionResponse
	_, err := c.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateCompletion(ctx, request)
		return err
	})
	if err != nil {
		c.recordFailure()
		return nil, fmt.Errorf("completion %w", err)
	}

	completion := &Completion{
		ID:      resp.ID,
		Object:  resp.Object,
		Model:   resp.Model,
		Choices: make([]Choice, len(resp.Choices)),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: time.Since(startTime),
	}
	for i, choice := range resp.Choices {
		completion.Choices[i] = Choice{
			Index:        choice.Index,
			Text:         choice.Text,
			FinishReason: choice.FinishReason,
		}
	}

	c.recordSuccess(completion)
	return completion, nil
}

func (c *Client) recordSuccess(completion *Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.totalTokens += uint64(completion.Usage.TotalTokens)
	if c.avgLatency == 0 {
		c.avgLatency = completion.Latency
	} else {
		c.avgLatency = (c.avgLatency + completion.Latency) / 2
	}
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.failedRequests++
}

// GetStats returns current client statistics
func (c *Client) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return ClientStats{
		Model:          c.config.Model,
		TotalRequests:  c.totalRequests,
		FailedRequests: c.failedRequests,
		TotalTokens:    c.totalTokens,
		AvgLatency:     c.avgLatency,
	}
}
