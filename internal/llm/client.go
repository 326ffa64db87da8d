// Package llm defines the model-call capability consumed by judges, plus the
// concrete adapters for the supported providers. The core is agnostic to how
// a client authenticates or which model family it targets: anything that can
// turn messages into text can sit on a panel.
package llm

import "context"

//go:generate go tool mockgen -source=client.go -destination=mock_client.go -package=llm

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    Role
	Content string
}

// Client is the injected model-call capability: ask a model a prompt, get
// text back. Implementations must be safe for concurrent use; the parallel
// orchestrator shares one client per judge across dimensions. Timeouts are
// the client's (or the caller's context's) responsibility, not the
// orchestrator's.
type Client interface {
	// Chat sends the conversation and returns the model's text reply.
	Chat(ctx context.Context, messages []Message) (string, error)

	// ModelName identifies the underlying model for verdicts and logs.
	ModelName() string
}

// SplitSystem separates system messages from conversational ones. Provider
// APIs disagree on where system prompts live.
func SplitSystem(messages []Message) (system string, rest []Message) {
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}
