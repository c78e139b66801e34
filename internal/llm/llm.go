package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/portfolio-chat/internal/config"
)

// ErrEmptyCompletion is returned when a provider answers without any text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// NewClient creates a new OpenAI client
func NewClient(cfg config.LLMConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return openai.NewClientWithConfig(config)
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint
// (OpenAI itself, OpenRouter, local gateways).
type OpenAI struct {
	client ChatClient
}

// NewOpenAI wraps a chat client.
func NewOpenAI(client ChatClient) *OpenAI {
	return &OpenAI{client: client}
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, ToOpenAIRequest(messages, params))
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: %w: no choices", ErrEmptyCompletion)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("openai: %w", ErrEmptyCompletion)
	}
	return content, nil
}

// ToOpenAIRequest maps messages and params onto the wire request, keeping order.
func ToOpenAIRequest(messages []Message, params Params) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    msgs,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
	}
}
