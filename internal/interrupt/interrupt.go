// ABOUTME: Pause and resume coordination between sessions and the runtime
// ABOUTME: Turns checkpoint state into pending approvals and decisions into resume payloads

package interrupt

import (
	"encoding/json"
	"errors"
	"slices"

	"github.com/kimyungju/pricewise/internal/store"
)

// ErrNoPendingInterrupt is returned when a decision arrives for a session that is not paused.
var ErrNoPendingInterrupt = errors.New("no pending interrupt")

// Pending is one tool invocation awaiting a human decision.
// ID is empty when the runtime paused without structured payloads.
type Pending struct {
	ID       string
	ToolName string
	Args     map[string]any
}

// State is the runtime state reduced to what the approval flow needs.
// InterruptIDs lists every raised interrupt, including payloads that are
// not tool approvals and so have no Pending entry.
type State struct {
	Paused       bool
	Pending      []Pending
	InterruptIDs []string
	Structured   *store.Receipt
}

// suspension is the payload shape raised by approval-gated tools.
type suspension struct {
	Tool *string        `json:"tool"`
	Args map[string]any `json:"args"`
}

// Inspect reads a checkpoint. It is the only place that interprets raw
// interrupt payloads. A nil checkpoint is a fresh, unpaused thread.
func Inspect(cp *store.Checkpoint) State {
	if cp == nil {
		return State{}
	}
	if !cp.Paused() {
		return State{Structured: cp.Receipt}
	}
	st := State{Paused: true, Pending: ExtractPending(cp)}
	for _, task := range cp.Tasks {
		for _, intr := range task.Interrupts {
			if intr.ID != "" {
				st.InterruptIDs = append(st.InterruptIDs, intr.ID)
			}
		}
	}
	return st
}

// ExtractPending lists pending approvals in task order, then interrupt order
// within a task. Payloads without a tool name are skipped. When no structured
// payload exists, the tool calls of the last assistant entry are returned
// without IDs.
func ExtractPending(cp *store.Checkpoint) []Pending {
	var pending []Pending
	for _, task := range cp.Tasks {
		for _, intr := range task.Interrupts {
			var s suspension
			if err := json.Unmarshal(intr.Value, &s); err != nil || s.Tool == nil {
				continue
			}
			args := s.Args
			if args == nil {
				args = map[string]any{}
			}
			pending = append(pending, Pending{ID: intr.ID, ToolName: *s.Tool, Args: args})
		}
	}
	if len(pending) > 0 {
		return pending
	}

	last, ok := cp.LastAssistant()
	if !ok {
		return nil
	}
	for _, call := range last.ToolCalls {
		pending = append(pending, Pending{ToolName: call.Name, Args: call.Args})
	}
	return pending
}

// IDs returns the non-empty interrupt IDs of pending, in order.
func IDs(pending []Pending) []string {
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.ID != "" {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// BuildResume applies one decision to every raised interrupt. With at most
// one identified interrupt the payload is a bare boolean; otherwise it maps
// each interrupt ID to the decision.
func BuildResume(st State, approved bool) (ResumePayload, error) {
	if !st.Paused {
		return ResumePayload{}, ErrNoPendingInterrupt
	}

	ids := slices.Clone(st.InterruptIDs)
	for _, id := range IDs(st.Pending) {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) <= 1 {
		return ResumeAll(approved), nil
	}

	decisions := make(map[string]bool, len(ids))
	for _, id := range ids {
		decisions[id] = approved
	}
	return ResumeEach(decisions), nil
}
