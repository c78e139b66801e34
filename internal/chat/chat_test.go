package chat

import (
	"context"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/portfolio-chat/internal/agent"
	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/llm"
	"github.com/comigor/portfolio-chat/internal/metrics"
)

type fakeStore struct {
	mu         sync.Mutex
	msgs       []history.Message
	historyErr error
	appendErrs map[history.Role]error
	calls      []string
}

func (f *fakeStore) Append(_ context.Context, sessionID string, role history.Role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "append:"+string(role))
	if err := f.appendErrs[role]; err != nil {
		return err
	}
	f.msgs = append(f.msgs, history.Message{ID: int64(len(f.msgs) + 1), SessionID: sessionID, Role: role, Content: content})
	return nil
}

func (f *fakeStore) History(_ context.Context, sessionID string, limit int) ([]history.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "history")
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var out []history.Message
	for _, m := range f.msgs {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

type fakeReplier struct {
	reply    string
	gotMsg   string
	gotPrior []history.Message
	calls    int
}

func (f *fakeReplier) GenerateReply(_ context.Context, msg string, prior []history.Message) string {
	f.calls++
	f.gotMsg = msg
	f.gotPrior = prior
	return f.reply
}

func TestSend_PersistsBothSidesInOrder(t *testing.T) {
	store := &fakeStore{}
	replier := &fakeReplier{reply: "Hello!"}
	svc := NewService(store, replier, Options{})

	turn, err := svc.Send(context.Background(), "s1", "  Hi  ")
	require.NoError(t, err)
	require.Equal(t, Turn{SessionID: "s1", Reply: "Hello!"}, turn)

	require.Equal(t, []string{"history", "append:user", "append:assistant"}, store.calls)
	require.Equal(t, "Hi", replier.gotMsg)
	require.Empty(t, replier.gotPrior, "the new message must not be part of prior history")

	require.Len(t, store.msgs, 2)
	require.Equal(t, history.RoleUser, store.msgs[0].Role)
	require.Equal(t, "Hi", store.msgs[0].Content)
	require.Equal(t, history.RoleAssistant, store.msgs[1].Role)
	require.Equal(t, "Hello!", store.msgs[1].Content)
}

func TestSend_PassesPriorHistory(t *testing.T) {
	store := &fakeStore{}
	replier := &fakeReplier{reply: "r"}
	svc := NewService(store, replier, Options{HistoryLimit: 3})

	for _, m := range []string{"one", "two", "three"} {
		_, err := svc.Send(context.Background(), "s", m)
		require.NoError(t, err)
	}

	// Limit 3 over [one r two r] is [r two r].
	require.Len(t, replier.gotPrior, 3)
	require.Equal(t, "r", replier.gotPrior[0].Content)
	require.Equal(t, "two", replier.gotPrior[1].Content)
	require.Equal(t, "r", replier.gotPrior[2].Content)
}

func TestSend_RejectsBlankMessage(t *testing.T) {
	store := &fakeStore{}
	replier := &fakeReplier{}
	m := metrics.New()
	svc := NewService(store, replier, Options{Metrics: m})

	for _, msg := range []string{"", "   ", "\n\t"} {
		_, err := svc.Send(context.Background(), "s", msg)
		require.ErrorIs(t, err, ErrEmptyMessage)
	}
	require.Empty(t, store.calls)
	require.Zero(t, replier.calls)
	require.Contains(t, scrape(t, m), `chat_turns_total{outcome="rejected"} 3`)
}

func TestSend_GeneratesSessionID(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeReplier{reply: "r"}, Options{NewSessionID: func() string { return "generated" }})

	turn, err := svc.Send(context.Background(), "", "hi")
	require.NoError(t, err)
	require.Equal(t, "generated", turn.SessionID)

	turn, err = svc.Send(context.Background(), "   ", "hi")
	require.NoError(t, err)
	require.Equal(t, "generated", turn.SessionID)
}

func TestSend_DefaultSessionIDIsUUID(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeReplier{reply: "r"}, Options{})
	a, err := svc.Send(context.Background(), "", "hi")
	require.NoError(t, err)
	b, err := svc.Send(context.Background(), "", "hi")
	require.NoError(t, err)
	require.Len(t, a.SessionID, 36)
	require.NotEqual(t, a.SessionID, b.SessionID)
}

func TestSend_HistoryFailureStopsTurn(t *testing.T) {
	storeErr := &history.StorageError{Op: "history", Err: errors.New("disk gone")}
	store := &fakeStore{historyErr: storeErr}
	replier := &fakeReplier{}
	svc := NewService(store, replier, Options{})

	_, err := svc.Send(context.Background(), "s", "hi")
	require.Error(t, err)
	var se *history.StorageError
	require.True(t, errors.As(err, &se))
	require.Zero(t, replier.calls)
	require.Equal(t, []string{"history"}, store.calls)
}

func TestSend_UserAppendFailureStopsTurn(t *testing.T) {
	store := &fakeStore{appendErrs: map[history.Role]error{history.RoleUser: errors.New("read-only")}}
	replier := &fakeReplier{}
	svc := NewService(store, replier, Options{})

	_, err := svc.Send(context.Background(), "s", "hi")
	require.ErrorContains(t, err, "read-only")
	require.Zero(t, replier.calls)
}

func TestSend_ReplyAppendFailureIsReturned(t *testing.T) {
	m := metrics.New()
	store := &fakeStore{appendErrs: map[history.Role]error{history.RoleAssistant: errors.New("full")}}
	svc := NewService(store, &fakeReplier{reply: "r"}, Options{Metrics: m})

	_, err := svc.Send(context.Background(), "s", "hi")
	require.ErrorContains(t, err, "full")

	body := scrape(t, m)
	require.Contains(t, body, `chat_turns_total{outcome="failed"} 1`)
	require.Contains(t, body, `chat_store_errors_total{op="append"} 1`)
}

type failingProvider struct{}

func (failingProvider) Complete(context.Context, []llm.Message, llm.Params) (string, error) {
	return "", errors.New("provider unreachable")
}

func TestSend_ProviderFailureStillCompletes(t *testing.T) {
	store := &fakeStore{}
	m := metrics.New()
	a := agent.New(failingProvider{}, agent.Options{Persona: "P", Observer: m})
	svc := NewService(store, a, Options{Metrics: m})

	turn, err := svc.Send(context.Background(), "s", "hi")
	require.NoError(t, err)
	require.Equal(t, agent.FallbackReply, turn.Reply)
	require.Len(t, store.msgs, 2)
	require.Equal(t, agent.FallbackReply, store.msgs[1].Content)

	body := scrape(t, m)
	require.Contains(t, body, `chat_turns_total{outcome="degraded"} 1`)
	require.Contains(t, body, "chat_provider_failures_total 1")
}

func TestService_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	store, err := history.Open(ctx, filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	defer store.Close()

	replier := &fakeReplier{reply: "Hello!"}
	svc := NewService(store, replier, Options{})

	_, err = svc.Send(ctx, "s1", "Hi")
	require.NoError(t, err)

	msgs, err := svc.History(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, history.RoleUser, msgs[0].Role)
	require.Equal(t, "Hi", msgs[0].Content)
	require.Equal(t, history.RoleAssistant, msgs[1].Role)
	require.Equal(t, "Hello!", msgs[1].Content)

	empty, err := svc.History(ctx, "nonexistent-session", 10)
	require.NoError(t, err)
	require.Empty(t, empty)

	// Zero limit falls back to the configured window.
	msgs, err = svc.History(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestService_HistoryError(t *testing.T) {
	svc := NewService(&fakeStore{historyErr: errors.New("locked")}, &fakeReplier{}, Options{})
	_, err := svc.History(context.Background(), "s", 5)
	require.ErrorContains(t, err, "locked")
}
