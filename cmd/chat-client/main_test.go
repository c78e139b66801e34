package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/comigor/portfolio-chat/internal/chat"
	"github.com/comigor/portfolio-chat/internal/client"
	"github.com/comigor/portfolio-chat/internal/config"
	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/server"
)

type echoReplier struct{}

func (echoReplier) GenerateReply(_ context.Context, msg string, _ []history.Message) string {
	return "echo: " + msg
}

func newREPL(t *testing.T, input, sessionID string) (*repl, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	store, err := history.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	srv, err := server.New(config.ServerConfig{}, chat.NewService(store, echoReplier{}, chat.Options{}), nil)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	var out bytes.Buffer
	return &repl{
		api:       client.New(ts.URL, nil),
		sessionID: sessionID,
		name:      "Ada",
		in:        strings.NewReader(input),
		out:       &out,
	}, &out
}

func TestREPL_SuggestedQuestionAndExit(t *testing.T) {
	r, out := newREPL(t, "2\nexit\n", "")
	require.NoError(t, r.run(context.Background()))

	text := out.String()
	require.Contains(t, text, "I'm Ada's AI assistant")
	require.Contains(t, text, "1. What projects has Ada built?")
	require.Contains(t, text, "Assistant: echo: What are Ada's technical skills?")
	require.Len(t, r.sessionID, 36)
}

func TestREPL_ResumeRestoresHistory(t *testing.T) {
	r, out := newREPL(t, "", "")
	_, err := r.api.Chat(context.Background(), "s-resume", "earlier question")
	require.NoError(t, err)

	r.sessionID = "s-resume"
	require.NoError(t, r.run(context.Background()))

	text := out.String()
	require.Contains(t, text, "You: earlier question")
	require.Contains(t, text, "Assistant: echo: earlier question")
	require.NotContains(t, text, "Suggested questions")
}

func TestREPL_NumbersAfterFirstQuestionAreSentVerbatim(t *testing.T) {
	r, out := newREPL(t, "hello\n1\n", "")
	require.NoError(t, r.run(context.Background()))
	require.Contains(t, out.String(), "Assistant: echo: 1")
}
