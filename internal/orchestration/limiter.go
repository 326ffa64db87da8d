// Package orchestration runs validations with three nested concurrency
// levels (dimensions, judges, batch jobs) behind resizable limiters and one
// shared rate limiter, degrading to the sequential validator when too much
// of a parallel run fails.
package orchestration

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/Really-Great-Tech/expense-ai-sub001/internal/llm"
)

// Limiter is a counting semaphore whose bound can be changed at runtime.
// Raising the bound wakes waiters immediately; lowering it applies to
// subsequently acquired slots without disturbing holders.
type Limiter struct {
	mu    sync.Mutex
	cond  *sync.Cond
	limit int
	inUse int
}

// NewLimiter builds a limiter with the given bound. Bounds below 1 are
// treated as 1.
func NewLimiter(limit int) *Limiter {
	if limit < 1 {
		limit = 1
	}
	l := &Limiter{limit: limit}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Acquire blocks until a slot is free. Context cancellation is observed
// between wakeups, not during a wait.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for l.inUse >= l.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	l.inUse++
	return nil
}

// Release frees a slot.
func (l *Limiter) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inUse > 0 {
		l.inUse--
	}
	l.cond.Broadcast()
}

// SetLimit adopts a new bound for subsequently scheduled tasks. Bounds below
// 1 are ignored.
func (l *Limiter) SetLimit(limit int) {
	if limit < 1 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limit = limit
	l.cond.Broadcast()
}

// Limit returns the current bound.
func (l *Limiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// rateLimitedClient gates every outbound chat call through the run-wide
// rate limiter. All judges across all dimensions share one limiter instance.
type rateLimitedClient struct {
	inner   llm.Client
	limiter *rate.Limiter
}

func newRateLimitedClient(inner llm.Client, limiter *rate.Limiter) llm.Client {
	if limiter == nil {
		return inner
	}
	return &rateLimitedClient{inner: inner, limiter: limiter}
}

func (c *rateLimitedClient) ModelName() string { return c.inner.ModelName() }

func (c *rateLimitedClient) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.inner.Chat(ctx, messages)
}
