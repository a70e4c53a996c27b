// ABOUTME: Tool contract, call envelope and tagged execution outcome
// ABOUTME: An outcome is either a completed result or a suspension awaiting approval

package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is a capability the model can invoke.
type Tool interface {
	// Name is the function name exposed to the model.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// Schema is the JSON Schema of the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. Returned errors are reported to the model as
	// error results; they never abort the conversation.
	Execute(ctx context.Context, call Call) (Outcome, error)
}

// Call is one invocation of a tool.
type Call struct {
	// ID links the call to its ToolCall and tool result entry.
	ID   string
	Name string
	// SessionID identifies the conversation the call belongs to.
	SessionID string
	Args      map[string]any
	// Resume is the continuation value for an approval-gated call: nil on
	// first execution, then the human decision.
	Resume *bool
}

// Decode unmarshals the call arguments into v.
func (c Call) Decode(v any) error {
	data, err := json.Marshal(c.Args)
	if err != nil {
		return fmt.Errorf("encoding %s arguments: %w", c.Name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s arguments: %w", c.Name, err)
	}
	return nil
}

// Result is the text a tool returns to the model.
type Result struct {
	Content string
	IsError bool
}

// Suspension asks for a human decision before the tool runs.
type Suspension struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// Outcome is exactly one of Result or Suspension.
type Outcome struct {
	Result     *Result
	Suspension *Suspension
}

// Suspended reports whether the outcome is a suspension.
func (o Outcome) Suspended() bool {
	return o.Suspension != nil
}

// Completed returns a successful outcome.
func Completed(content string) Outcome {
	return Outcome{Result: &Result{Content: content}}
}

// Failed returns an error outcome.
func Failed(content string) Outcome {
	return Outcome{Result: &Result{Content: content, IsError: true}}
}

// Suspend returns an outcome asking for approval of tool with args.
func Suspend(tool string, args map[string]any) Outcome {
	if args == nil {
		args = map[string]any{}
	}
	return Outcome{Suspension: &Suspension{Tool: tool, Args: args}}
}
