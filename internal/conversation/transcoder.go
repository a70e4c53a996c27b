// ABOUTME: Converts runtime events and the final runtime state into protocol events
// ABOUTME: Guarantees a single trailing done event for every turn

package conversation

import (
	"context"
	"log/slog"

	"github.com/kimyungju/pricewise/internal/agent"
	"github.com/kimyungju/pricewise/internal/interrupt"
	"github.com/kimyungju/pricewise/internal/protocol"
	"github.com/kimyungju/pricewise/internal/store"
)

// Runtime is what the transcoder needs from the agent runtime.
type Runtime interface {
	Stream(ctx context.Context, threadID string, in agent.Input) (<-chan agent.Event, error)
	State(ctx context.Context, threadID string) (*store.Checkpoint, error)
}

// Turn outcomes reported by Run.
const (
	OutcomeCompleted = "completed"
	OutcomePaused    = "paused"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// Transcoder turns one runtime turn into protocol events.
type Transcoder struct {
	runtime Runtime
	logger  *slog.Logger
}

// NewTranscoder creates a Transcoder for rt.
func NewTranscoder(rt Runtime, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{runtime: rt, logger: logger.With("component", "transcoder")}
}

// Run executes a turn and passes every protocol event to emit. emit returns
// false once the consumer is gone; Run then stops forwarding. The last event
// emitted is always done.
func (t *Transcoder) Run(ctx context.Context, threadID string, in agent.Input, emit func(protocol.Event) bool) string {
	events, err := t.runtime.Stream(ctx, threadID, in)
	if err != nil {
		return Fail(err, emit)
	}

	failed := false
	for ev := range events {
		if ev.Err != nil {
			failed = true
			if !emit(protocol.Error(ev.Err.Error())) {
				return t.abort(events)
			}
			continue
		}
		for _, pe := range translate(ev) {
			if !emit(pe) {
				return t.abort(events)
			}
		}
	}
	if failed {
		emit(protocol.Done())
		return OutcomeError
	}

	cp, err := t.runtime.State(ctx, threadID)
	if err != nil {
		return Fail(err, emit)
	}

	outcome := OutcomeCompleted
	st := interrupt.Inspect(cp)
	switch {
	case st.Paused:
		outcome = OutcomePaused
		if len(st.Pending) > 0 {
			calls := make([]protocol.ToolCallData, 0, len(st.Pending))
			for _, p := range st.Pending {
				calls = append(calls, protocol.ToolCallData{Name: p.ToolName, Args: p.Args})
			}
			if !emit(protocol.ApprovalRequired(calls, interrupt.IDs(st.Pending))) {
				return OutcomeCancelled
			}
		}
	case st.Structured != nil:
		if !emit(protocol.Receipt(ReceiptData(st.Structured))) {
			return OutcomeCancelled
		}
	}
	if !emit(protocol.Done()) {
		return OutcomeCancelled
	}
	return outcome
}

// abort waits for the runtime to stop so its last checkpoint write lands
// before the turn is released.
func (t *Transcoder) abort(events <-chan agent.Event) string {
	for range events {
	}
	t.logger.Debug("client went away, stopped forwarding")
	return OutcomeCancelled
}

// Fail emits an error event followed by done.
func Fail(err error, emit func(protocol.Event) bool) string {
	if emit(protocol.Error(err.Error())) {
		emit(protocol.Done())
	}
	return OutcomeError
}

func translate(ev agent.Event) []protocol.Event {
	if ev.Node == agent.NodeStructured {
		return nil
	}
	switch ev.Mode {
	case agent.ModeMessages:
		if ev.Node == agent.NodeAgent && ev.Text != "" {
			return []protocol.Event{protocol.Token(ev.Text)}
		}
	case agent.ModeUpdates:
		var out []protocol.Event
		for _, c := range ev.ToolCalls {
			out = append(out, protocol.ToolCall(c.Name, c.Args))
		}
		for _, r := range ev.ToolResults {
			out = append(out, protocol.ToolResult(r.ToolName, r.Content))
		}
		return out
	}
	return nil
}

// ReceiptData converts a stored receipt to its wire form.
func ReceiptData(r *store.Receipt) protocol.ReceiptData {
	return protocol.ReceiptData{
		ProductName:          r.ProductName,
		Price:                r.Price,
		Currency:             r.Currency,
		AverageRating:        r.AverageRating,
		PriceRange:           r.PriceRange,
		RecommendationReason: r.RecommendationReason,
	}
}
