package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini implements Provider for the Google Gemini API.
type Gemini struct {
	client *genai.Client
}

// NewGemini creates a Gemini provider with the given API key.
func NewGemini(ctx context.Context, apiKey string) (*Gemini, error) {
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &Gemini{client: gc}, nil
}

// Complete implements Provider.
func (g *Gemini) Complete(ctx context.Context, messages []Message, params Params) (string, error) {
	system, contents := ConvertMessages(messages)
	resp, err := g.client.Models.GenerateContent(ctx, params.Model, contents, BuildConfig(system, params))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	text := ResponseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyCompletion)
	}
	return text, nil
}

// ConvertMessages splits system entries off into a system instruction and
// maps the remaining turns to genai contents, preserving order.
func ConvertMessages(messages []Message) (string, []*genai.Content) {
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content}},
			})
		}
	}
	return strings.Join(system, "\n\n"), contents
}

// BuildConfig maps generation params to a genai config.
func BuildConfig(system string, params Params) *genai.GenerateContentConfig {
	temp := params.Temperature
	topP := params.TopP
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		TopP:            &topP,
		MaxOutputTokens: int32(params.MaxTokens),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	return config
}

// ResponseText concatenates the non-thought text parts of the first candidate.
func ResponseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
