// Package chat runs one conversational turn: it validates the message,
// loads prior history, persists the user message, asks the assistant for a
// reply and persists that reply.
//
// Two concurrent turns on the same session are not serialised and their
// writes may interleave in the log.
package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/metrics"
)

// ErrEmptyMessage rejects blank input before any storage or provider work.
var ErrEmptyMessage = errors.New("chat: message cannot be empty")

// Store is the conversation log used by the service.
type Store interface {
	Append(ctx context.Context, sessionID string, role history.Role, content string) error
	History(ctx context.Context, sessionID string, limit int) ([]history.Message, error)
}

// Replier produces the assistant's answer. It must not fail.
type Replier interface {
	GenerateReply(ctx context.Context, userMessage string, prior []history.Message) string
}

// Options tune the service.
type Options struct {
	HistoryLimit int
	Metrics      *metrics.Metrics
	NewSessionID func() string
}

// Turn is the outcome of a successful Send.
type Turn struct {
	SessionID string
	Reply     string
}

// Service coordinates the store and the replier.
type Service struct {
	store   Store
	replier Replier
	opts    Options
}

// NewService creates a service.
func NewService(store Store, replier Replier, opts Options) *Service {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = history.DefaultHistoryLimit
	}
	if opts.NewSessionID == nil {
		opts.NewSessionID = uuid.NewString
	}
	return &Service{store: store, replier: replier, opts: opts}
}

// Send processes one user message. An empty sessionID starts a new session.
// Storage failures are returned; provider failures surface as the
// replier's fallback text.
func (s *Service) Send(ctx context.Context, sessionID, message string) (Turn, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		s.opts.Metrics.TurnCompleted(metrics.OutcomeRejected)
		return Turn{}, ErrEmptyMessage
	}
	if strings.TrimSpace(sessionID) == "" {
		sessionID = s.opts.NewSessionID()
	}

	t := &turn{svc: s, sessionID: sessionID, message: message}
	if err := t.run(ctx); err != nil {
		s.opts.Metrics.TurnCompleted(metrics.OutcomeFailed)
		return Turn{}, err
	}
	return Turn{SessionID: sessionID, Reply: t.reply}, nil
}

// History returns up to limit recent messages of a session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]history.Message, error) {
	if limit <= 0 {
		limit = s.opts.HistoryLimit
	}
	msgs, err := s.store.History(ctx, sessionID, limit)
	if err != nil {
		s.opts.Metrics.StoreError("history")
		return nil, err
	}
	return msgs, nil
}
