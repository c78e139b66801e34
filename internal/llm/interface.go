package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Role tags a message sent to a completion provider.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the ordered instruction list.
type Message struct {
	Role    Role
	Content string
}

// Params are the generation parameters of a single completion.
type Params struct {
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Provider returns one textual completion for an ordered message list.
type Provider interface {
	Complete(ctx context.Context, messages []Message, params Params) (string, error)
}

// ChatClient is minimal subset of openai.Client used by the OpenAI provider; it is easy to mock in tests.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}
