// ABOUTME: Conversation service running turns for sessions
// ABOUTME: Resolves sessions, serializes turns and exposes persisted history

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kimyungju/pricewise/internal/agent"
	"github.com/kimyungju/pricewise/internal/interrupt"
	"github.com/kimyungju/pricewise/internal/observability"
	"github.com/kimyungju/pricewise/internal/protocol"
	"github.com/kimyungju/pricewise/internal/session"
	"github.com/kimyungju/pricewise/internal/store"
)

// ErrEmptyMessage is returned when a message has no content.
var ErrEmptyMessage = errors.New("message content is required")

// Turn kinds used in metrics and traces.
const (
	TurnMessage = "message"
	TurnApprove = "approve"
)

// Service runs chat turns.
type Service struct {
	runtime     Runtime
	sessions    *session.Registry
	transcoder  *Transcoder
	broadcaster *EventBroadcaster
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// New creates a Service. broadcaster and metrics may be nil.
func New(rt Runtime, sessions *session.Registry, broadcaster *EventBroadcaster, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runtime:     rt,
		sessions:    sessions,
		transcoder:  NewTranscoder(rt, logger),
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.With("component", "conversation"),
	}
}

// CreateSession registers a new session.
func (s *Service) CreateSession() *session.Session {
	return s.sessions.Create()
}

// Send starts a turn with a user message.
func (s *Service) Send(ctx context.Context, sessionID, content string) (<-chan protocol.Event, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	return s.start(ctx, sessionID, TurnMessage, func(context.Context, *session.Session) (agent.Input, error) {
		return agent.Input{Message: content}, nil
	})
}

// Approve resumes a paused turn, applying the decision to every pending
// interrupt. A session that is not paused gets an error event.
func (s *Service) Approve(ctx context.Context, sessionID string, approved bool) (<-chan protocol.Event, error) {
	return s.start(ctx, sessionID, TurnApprove, func(ctx context.Context, sess *session.Session) (agent.Input, error) {
		cp, err := s.runtime.State(ctx, sess.ThreadID)
		if err != nil {
			return agent.Input{}, err
		}
		payload, err := interrupt.BuildResume(interrupt.Inspect(cp), approved)
		if err != nil {
			return agent.Input{}, err
		}
		s.metrics.Approval(approved)
		s.logger.Info("resuming turn", "session_id", sess.ID, "approved", approved, "per_interrupt", payload.IsMapping())
		return agent.Input{Resume: &payload}, nil
	})
}

type prepareFunc func(ctx context.Context, sess *session.Session) (agent.Input, error)

// start resolves the session and takes its turn lock before any event is
// produced, so lookup and conflict errors surface as plain errors.
func (s *Service) start(ctx context.Context, sessionID, kind string, prepare prepareFunc) (<-chan protocol.Event, error) {
	sess, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	release, err := sess.BeginTurn()
	if err != nil {
		return nil, err
	}

	out := make(chan protocol.Event, 16)
	go func() {
		defer close(out)
		defer release()

		ctx, span := observability.StartSpan(ctx, "conversation.turn", "session.id", sess.ID, "turn.kind", kind)
		defer span.End()

		emit := func(e protocol.Event) bool {
			select {
			case out <- e:
			case <-ctx.Done():
				return false
			}
			s.metrics.StreamEvent(string(e.Kind))
			s.broadcaster.Publish(sess.ID, e)
			return true
		}

		var outcome string
		in, err := prepare(ctx, sess)
		if err != nil {
			observability.RecordError(span, err)
			outcome = Fail(err, emit)
		} else {
			outcome = s.transcoder.Run(ctx, sess.ThreadID, in, emit)
		}
		s.metrics.TurnFinished(kind, outcome)
		s.logger.Debug("turn finished", "session_id", sess.ID, "kind", kind, "outcome", outcome)
	}()
	return out, nil
}

// Message is one entry of a session's visible history.
type Message struct {
	ID        string                  `json:"id"`
	Role      string                  `json:"role"`
	Content   string                  `json:"content"`
	ToolCalls []protocol.ToolCallData `json:"toolCalls,omitempty"`
	Name      string                  `json:"name,omitempty"`
}

// History is a session's persisted conversation and latest receipt.
type History struct {
	Messages []Message            `json:"messages"`
	Receipt  *protocol.ReceiptData `json:"receipt"`
}

// History returns the conversation of a session. Tool results are included
// so denials stay visible.
func (s *Service) History(ctx context.Context, sessionID string) (*History, error) {
	sess, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cp, err := s.runtime.State(ctx, sess.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	h := &History{Messages: []Message{}}
	if cp == nil {
		return h, nil
	}
	for _, e := range cp.Entries {
		if m, ok := toMessage(e); ok {
			h.Messages = append(h.Messages, m)
		}
	}
	if cp.Receipt != nil {
		r := ReceiptData(cp.Receipt)
		h.Receipt = &r
	}
	return h, nil
}

func toMessage(e store.Entry) (Message, bool) {
	m := Message{ID: e.ID, Content: e.Content}
	switch e.Kind {
	case store.KindUser:
		m.Role = "user"
	case store.KindAssistant:
		m.Role = "assistant"
		for _, c := range e.ToolCalls {
			args := c.Args
			if args == nil {
				args = map[string]any{}
			}
			m.ToolCalls = append(m.ToolCalls, protocol.ToolCallData{Name: c.Name, Args: args})
		}
	case store.KindTool:
		m.Role = "tool"
		m.Name = e.ToolName
	default:
		return Message{}, false
	}
	return m, true
}

// Subscribe watches the events of an existing session.
func (s *Service) Subscribe(ctx context.Context, sessionID string) (<-chan protocol.Event, error) {
	if s.broadcaster == nil {
		return nil, errors.New("event broadcasting is disabled")
	}
	sess, err := s.sessions.Resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ch, _ := s.broadcaster.Subscribe(ctx, sess.ID)
	return ch, nil
}
