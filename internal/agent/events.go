// ABOUTME: Event types emitted by the runtime while a turn executes
// ABOUTME: Text fragments stream in messages mode, finished steps in updates mode

package agent

import "github.com/kimyungju/pricewise/internal/store"

// Step names.
const (
	NodeAgent      = "agent"
	NodeTools      = "tools"
	NodeStructured = "generate_structured_response"
)

// Mode distinguishes streamed text from step updates.
type Mode string

const (
	ModeMessages Mode = "messages"
	ModeUpdates  Mode = "updates"
)

// Event is one runtime event.
type Event struct {
	Mode Mode
	Node string

	// Text is a model output fragment (ModeMessages).
	Text string

	// ToolCalls are the calls requested by a finished agent step.
	ToolCalls []store.ToolCall

	// ToolResults are the tool entries appended by a finished tools step.
	ToolResults []store.Entry

	// Receipt is set by a finished structured response step.
	Receipt *store.Receipt

	// Err ends the stream.
	Err error
}
