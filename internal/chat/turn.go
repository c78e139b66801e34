package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/qmuntal/stateless"
	"go.opentelemetry.io/otel/attribute"

	"github.com/comigor/portfolio-chat/internal/agent"
	"github.com/comigor/portfolio-chat/internal/history"
	"github.com/comigor/portfolio-chat/internal/logger"
	"github.com/comigor/portfolio-chat/internal/metrics"
	"github.com/comigor/portfolio-chat/internal/telemetry"
)

// Turn states
const (
	StateReceived        = "Received"
	StateLoadingHistory  = "LoadingHistory"
	StatePersistingUser  = "PersistingUser"
	StateGeneratingReply = "GeneratingReply"
	StatePersistingReply = "PersistingReply"
	StateDone            = "Done"   // Terminal: reply persisted
	StateFailed          = "Failed" // Terminal: storage error
)

// Turn triggers
const (
	TriggerStart          = "Start"
	TriggerHistoryLoaded  = "HistoryLoaded"
	TriggerUserPersisted  = "UserPersisted"
	TriggerReplyGenerated = "ReplyGenerated"
	TriggerReplyPersisted = "ReplyPersisted"
	TriggerStorageFailed  = "StorageFailed"
)

var tracer = telemetry.Tracer("chat")

// turn carries the data of one Send through the state machine.
type turn struct {
	svc       *Service
	sessionID string
	message   string

	prior []history.Message
	reply string
	err   error
	next  string
}

func (t *turn) fail(op string, err error) {
	t.svc.opts.Metrics.StoreError(op)
	logger.L.Error("conversation store failed", "op", op, "session_id", t.sessionID, "error", err)
	t.err = fmt.Errorf("chat: %s: %w", op, err)
	t.next = TriggerStorageFailed
}

// machine wires the turn's states. Every OnEntry action does its work and
// records the trigger to fire next; run drives the machine until a terminal
// state is reached.
func (t *turn) machine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateReceived)

	fsm.Configure(StateReceived).
		Permit(TriggerStart, StateLoadingHistory)

	fsm.Configure(StateLoadingHistory).
		OnEntry(func(ctx context.Context, _ ...any) error {
			prior, err := t.svc.store.History(ctx, t.sessionID, t.svc.opts.HistoryLimit)
			if err != nil {
				t.fail("history", err)
				return nil
			}
			t.prior = prior
			t.next = TriggerHistoryLoaded
			return nil
		}).
		Permit(TriggerHistoryLoaded, StatePersistingUser).
		Permit(TriggerStorageFailed, StateFailed)

	fsm.Configure(StatePersistingUser).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if err := t.svc.store.Append(ctx, t.sessionID, history.RoleUser, t.message); err != nil {
				t.fail("append", err)
				return nil
			}
			t.next = TriggerUserPersisted
			return nil
		}).
		Permit(TriggerUserPersisted, StateGeneratingReply).
		Permit(TriggerStorageFailed, StateFailed)

	fsm.Configure(StateGeneratingReply).
		OnEntry(func(ctx context.Context, _ ...any) error {
			t.reply = t.svc.replier.GenerateReply(ctx, t.message, t.prior)
			t.next = TriggerReplyGenerated
			return nil
		}).
		Permit(TriggerReplyGenerated, StatePersistingReply)

	fsm.Configure(StatePersistingReply).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if err := t.svc.store.Append(ctx, t.sessionID, history.RoleAssistant, t.reply); err != nil {
				t.fail("append", err)
				return nil
			}
			t.next = TriggerReplyPersisted
			return nil
		}).
		Permit(TriggerReplyPersisted, StateDone).
		Permit(TriggerStorageFailed, StateFailed)

	fsm.Configure(StateDone)
	fsm.Configure(StateFailed)

	return fsm
}

func (t *turn) run(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "chat.turn")
	span.SetAttributes(attribute.String("chat.session_id", t.sessionID))
	defer func() { telemetry.End(span, err) }()

	fsm := t.machine()
	t.next = TriggerStart
	for {
		trigger := t.next
		t.next = ""
		if err := fsm.FireCtx(ctx, trigger); err != nil {
			return fmt.Errorf("chat: turn state machine: %w", err)
		}

		state, err := fsm.State(ctx)
		if err != nil {
			return fmt.Errorf("chat: turn state machine: %w", err)
		}
		logger.L.Debug("turn state", "session_id", t.sessionID, "state", state)

		switch state {
		case StateDone:
			outcome := metrics.OutcomeReplied
			if t.reply == agent.FallbackReply {
				outcome = metrics.OutcomeDegraded
			}
			t.svc.opts.Metrics.TurnCompleted(outcome)
			return nil
		case StateFailed:
			if t.err == nil {
				t.err = errors.New("chat: turn failed without a specific error")
			}
			return t.err
		}
		if t.next == "" {
			return fmt.Errorf("chat: turn stalled in state %v", state)
		}
	}
}
