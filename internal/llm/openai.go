package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const defaultOpenAIMaxTokens = 2048

// OpenAIClient adapts the OpenAI chat completion API to the Client capability.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAIClient builds a client for the given model identifier and sampling
// temperature.
func NewOpenAIClient(apiKey, model string, temperature float64) *OpenAIClient {
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(openai.DefaultConfig(apiKey)),
		model:       model,
		temperature: float32(temperature),
		maxTokens:   defaultOpenAIMaxTokens,
	}
}

// ModelName implements [Client].
func (c *OpenAIClient) ModelName() string { return c.model }

// Chat implements [Client].
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
