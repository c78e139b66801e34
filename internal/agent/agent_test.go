package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/llm"
)

type mockProvider struct {
	mu     sync.Mutex
	reply  string
	err    error
	block  bool
	panics bool
	calls  [][]llm.Message
	params []llm.Params
}

func (m *mockProvider) Complete(ctx context.Context, messages []llm.Message, params llm.Params) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.params = append(m.params, params)
	m.mu.Unlock()

	if m.panics {
		panic("provider exploded")
	}
	if m.block {
		// Ignores ctx on purpose: the agent must stop waiting by itself.
		time.Sleep(time.Second)
	}
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type recordingObserver struct {
	mu   sync.Mutex
	errs []error
}

func (o *recordingObserver) ObserveCompletion(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.errs = append(o.errs, err)
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Persona = "P"
	opts.Model = "test-model"
	return opts
}

func TestBuildMessages_Order(t *testing.T) {
	prior := []history.Message{
		{Role: history.RoleUser, Content: "hi"},
		{Role: history.RoleAssistant, Content: "hello"},
	}

	got := BuildMessages("P", prior, "how are you")
	require.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "P"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "how are you"},
	}, got)
}

func TestBuildMessages_NoHistory(t *testing.T) {
	got := BuildMessages("P", nil, "first")
	require.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "P"},
		{Role: llm.RoleUser, Content: "first"},
	}, got)
}

func TestGenerateReply_PassesOrderedPromptAndParams(t *testing.T) {
	p := &mockProvider{reply: "I'm fine"}
	a := New(p, testOptions())

	prior := []history.Message{
		{Role: history.RoleUser, Content: "hi"},
		{Role: history.RoleAssistant, Content: "hello"},
	}
	out := a.GenerateReply(context.Background(), "how are you", prior)
	require.Equal(t, "I'm fine", out)

	require.Len(t, p.calls, 1)
	require.Equal(t, []llm.Message{
		{Role: llm.RoleSystem, Content: "P"},
		{Role: llm.RoleUser, Content: "hi"},
		{Role: llm.RoleAssistant, Content: "hello"},
		{Role: llm.RoleUser, Content: "how are you"},
	}, p.calls[0])
	require.Equal(t, llm.Params{Model: "test-model", Temperature: 0.7, TopP: 0.9, MaxTokens: 1024}, p.params[0])
}

func TestGenerateReply_ReturnsReplyUnmodified(t *testing.T) {
	reply := "  **Bold** answer with trailing space \n"
	a := New(&mockProvider{reply: reply}, testOptions())
	require.Equal(t, reply, a.GenerateReply(context.Background(), "q", nil))
}

func TestGenerateReply_FallbackOnProviderError(t *testing.T) {
	obs := &recordingObserver{}
	opts := testOptions()
	opts.Observer = obs
	a := New(&mockProvider{err: errors.New("502 bad gateway")}, opts)

	out := a.GenerateReply(context.Background(), "hi", nil)
	require.Equal(t, FallbackReply, out)
	require.Len(t, obs.errs, 1)
	require.Error(t, obs.errs[0])
}

func TestGenerateReply_FallbackOnTimeout(t *testing.T) {
	opts := testOptions()
	opts.Timeout = 20 * time.Millisecond
	a := New(&mockProvider{block: true, reply: "too late"}, opts)

	start := time.Now()
	out := a.GenerateReply(context.Background(), "hi", nil)
	require.Equal(t, FallbackReply, out)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGenerateReply_FallbackOnPanic(t *testing.T) {
	a := New(&mockProvider{panics: true}, testOptions())
	require.Equal(t, FallbackReply, a.GenerateReply(context.Background(), "hi", nil))
}

func TestGenerateReply_FallbackOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := New(&mockProvider{block: true}, testOptions())
	require.Equal(t, FallbackReply, a.GenerateReply(ctx, "hi", nil))
}

func TestGenerateReply_Concurrent(t *testing.T) {
	p := &mockProvider{reply: "ok"}
	a := New(p, testOptions())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "ok", a.GenerateReply(context.Background(), "hi", nil))
		}()
	}
	wg.Wait()
	require.Len(t, p.calls, 16)
}

func TestNew_DefaultsTimeout(t *testing.T) {
	a := New(&mockProvider{}, Options{Persona: "x"})
	require.Equal(t, 30*time.Second, a.opts.Timeout)
	require.Equal(t, "x", a.Persona())
}
