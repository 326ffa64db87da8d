package llm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// RetryConfig configures backoff retry around transport errors. This covers
// transient provider failures (throttling, 5xx); it is separate from the
// judge-level re-ask retries on unparseable output.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts. 0 disables retry.
	MaxRetries int
	// BaseBackoff is the initial backoff duration.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
	// MaxJitter is the maximum random jitter added to each backoff.
	MaxJitter time.Duration
}

// DefaultRetryConfig uses longer backoffs than typical retry configs because
// provider rate limits often need time to recover.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  30 * time.Second,
		MaxJitter:   500 * time.Millisecond,
	}
}

// RetryingClient wraps a Client with exponential-backoff retry on Chat
// errors.
type RetryingClient struct {
	inner Client
	cfg   RetryConfig
}

// NewRetryingClient wraps inner with the given retry policy.
func NewRetryingClient(inner Client, cfg RetryConfig) *RetryingClient {
	return &RetryingClient{inner: inner, cfg: cfg}
}

// ModelName implements [Client].
func (c *RetryingClient) ModelName() string { return c.inner.ModelName() }

// Chat implements [Client].
func (c *RetryingClient) Chat(ctx context.Context, messages []Message) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		text, err := c.inner.Chat(ctx, messages)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if attempt >= c.cfg.MaxRetries {
			break
		}

		backoff := min(c.cfg.BaseBackoff<<attempt, c.cfg.MaxBackoff)
		if c.cfg.MaxJitter > 0 {
			backoff += time.Duration(rand.Int63n(int64(c.cfg.MaxJitter)))
		}

		slog.WarnContext(ctx, "model call failed, retrying",
			"model", c.inner.ModelName(),
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"backoff", backoff,
			"error", err)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}

	return "", fmt.Errorf("chat with %s failed after %d retries: %w", c.inner.ModelName(), c.cfg.MaxRetries, lastErr)
}
