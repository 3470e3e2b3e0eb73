package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Policy describes how failed upstream calls are retried
type Policy struct {
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// DefaultPolicy retries three times waiting 1s, 2s, 4s
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:  3,
		BaseBackoff: time.Second,
		MaxBackoff:  30 * time.Second,
	}
}

// Backoff returns the wait before the given retry attempt (1-based)
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	backoff := p.BaseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}

	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}
	return backoff
}

// Do runs fn until it succeeds, fails with a non-retryable error or the
// retries are exhausted. It returns the number of retries performed.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	retries := 0

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			retries++
			select {
			case <-time.After(p.Backoff(attempt)):
			case <-ctx.Done():
				return retries, ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return retries, nil
		}

		lastErr = err
		if !IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	return retries, fmt.Errorf("failed after %d attempts: %w", retries+1, lastErr)
}

// IsRetryable reports whether an upstream error is worth retrying:
// rate limiting, server errors, timeouts and network failures
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
