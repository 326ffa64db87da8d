package llm

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedClient is a Client for tests and offline runs. It answers either
// from a fixed response, a rotating script, or a caller-supplied function,
// and records every call.
type ScriptedClient struct {
	model string

	mu        sync.Mutex
	responses []string
	next      int
	respondFn func(ctx context.Context, messages []Message) (string, error)
	err       error
	calls     [][]Message
}

// NewScriptedClient returns a client that cycles through the given responses.
// With no responses it echoes a canned reply.
func NewScriptedClient(model string, responses ...string) *ScriptedClient {
	return &ScriptedClient{model: model, responses: responses}
}

// NewFailingClient returns a client whose every call fails with err.
func NewFailingClient(model string, err error) *ScriptedClient {
	return &ScriptedClient{model: model, err: err}
}

// NewFuncClient returns a client that delegates to fn.
func NewFuncClient(model string, fn func(ctx context.Context, messages []Message) (string, error)) *ScriptedClient {
	return &ScriptedClient{model: model, respondFn: fn}
}

// ModelName implements [Client].
func (c *ScriptedClient) ModelName() string { return c.model }

// Chat implements [Client].
func (c *ScriptedClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.calls = append(c.calls, messages)
	err := c.err
	fn := c.respondFn
	var resp string
	if err == nil && fn == nil {
		if len(c.responses) == 0 {
			resp = fmt.Sprintf("scripted response from %s", c.model)
		} else {
			resp = c.responses[c.next%len(c.responses)]
			c.next++
		}
	}
	c.mu.Unlock()

	if err != nil {
		return "", err
	}
	if fn != nil {
		return fn(ctx, messages)
	}
	return resp, nil
}

// CallCount returns how many times Chat was invoked.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// LastCall returns the messages of the most recent Chat invocation, or nil.
func (c *ScriptedClient) LastCall() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1]
}
