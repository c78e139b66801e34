// Package agent turns a session's prior history and a new user message into
// a reply from the completion provider. It never persists anything; callers
// own storage.
package agent

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/llm"
	"github.com/comigor/portfolio-chat/internal/logger"
	"github.com/comigor/portfolio-chat/internal/telemetry"
)

// FallbackReply is returned whenever the provider cannot produce a reply.
const FallbackReply = "I'm sorry, I'm having trouble processing your request right now. Please try again in a moment."

// Observer receives the outcome of every provider call.
type Observer interface {
	ObserveCompletion(d time.Duration, err error)
}

// Options are fixed for the process lifetime.
type Options struct {
	Persona     string
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
	Timeout     time.Duration
	Observer    Observer
}

// DefaultOptions returns the generation parameters used in production.
func DefaultOptions() Options {
	return Options{
		Model:       "meta-llama/llama-3.3-70b-instruct",
		Temperature: 0.7,
		TopP:        0.9,
		MaxTokens:   1024,
		Timeout:     30 * time.Second,
	}
}

// Agent is the response assembler. It holds no per-call state and is safe
// for concurrent use.
type Agent struct {
	provider llm.Provider
	opts     Options
}

var tracer = telemetry.Tracer("agent")

// New creates a new agent.
func New(provider llm.Provider, opts Options) *Agent {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return &Agent{provider: provider, opts: opts}
}

// Persona returns the system prompt sent first on every call.
func (a *Agent) Persona() string { return a.opts.Persona }

// BuildMessages lays out the instruction list: persona, then prior history
// in chronological order, then the new user message.
func BuildMessages(persona string, prior []history.Message, userMessage string) []llm.Message {
	msgs := make([]llm.Message, 0, len(prior)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: persona})
	for _, m := range prior {
		msgs = append(msgs, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: userMessage})
}

// GenerateReply asks the provider for a reply. userMessage must already be
// trimmed and non-empty. Provider failures of any kind yield FallbackReply.
func (a *Agent) GenerateReply(ctx context.Context, userMessage string, prior []history.Message) string {
	ctx, span := tracer.Start(ctx, "agent.generate_reply")
	span.SetAttributes(
		attribute.String("llm.model", a.opts.Model),
		attribute.Int("chat.history_len", len(prior)),
	)

	ctx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	messages := BuildMessages(a.opts.Persona, prior, userMessage)

	start := time.Now()
	reply, err := a.complete(ctx, messages)
	elapsed := time.Since(start)
	if a.opts.Observer != nil {
		a.opts.Observer.ObserveCompletion(elapsed, err)
	}
	telemetry.End(span, err)

	if err != nil {
		logger.L.Error("LLM call failed", "error", err, "model", a.opts.Model, "elapsed", elapsed)
		return FallbackReply
	}
	logger.L.Debug("LLM response received", "model", a.opts.Model, "elapsed", elapsed, "chars", len(reply))
	return reply
}

type completion struct {
	text string
	err  error
}

// complete runs the provider call and stops waiting once ctx is done, even
// if the provider ignores cancellation.
func (a *Agent) complete(ctx context.Context, messages []llm.Message) (string, error) {
	params := llm.Params{
		Model:       a.opts.Model,
		Temperature: a.opts.Temperature,
		TopP:        a.opts.TopP,
		MaxTokens:   a.opts.MaxTokens,
	}

	done := make(chan completion, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- completion{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		text, err := a.provider.Complete(ctx, messages, params)
		done <- completion{text: text, err: err}
	}()

	select {
	case c := <-done:
		return c.text, c.err
	case <-ctx.Done():
		return "", fmt.Errorf("waiting for provider: %w", ctx.Err())
	}
}
