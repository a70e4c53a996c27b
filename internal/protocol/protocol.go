// ABOUTME: Client-facing stream event kinds and their JSON payloads
// ABOUTME: Every turn stream is a sequence of these events ending in exactly one done

package protocol

// Kind names an event on the client stream.
type Kind string

const (
	KindToken            Kind = "token"
	KindToolCall         Kind = "tool_call"
	KindToolResult       Kind = "tool_result"
	KindApprovalRequired Kind = "approval_required"
	KindReceipt          Kind = "receipt"
	KindError            Kind = "error"
	KindDone             Kind = "done"
)

// MaxToolResultLen is the number of characters of a tool result sent to clients.
const MaxToolResultLen = 2000

// Event is one client stream event. Data is the JSON payload.
type Event struct {
	Kind Kind
	Data any
}

// TokenData carries a partial assistant text fragment.
type TokenData struct {
	Content string `json:"content"`
}

// ToolCallData describes a tool invocation requested by the assistant.
type ToolCallData struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResultData carries a (possibly truncated) tool result.
type ToolResultData struct {
	Name   string `json:"name"`
	Result string `json:"result"`
}

// ApprovalRequiredData lists the tool calls awaiting a decision.
// InterruptIDs may be shorter than ToolCalls when the runtime gave no ids.
type ApprovalRequiredData struct {
	ToolCalls    []ToolCallData `json:"tool_calls"`
	InterruptIDs []string       `json:"interrupt_ids"`
}

// ReceiptData is the structured product summary of a finished turn.
type ReceiptData struct {
	ProductName          string   `json:"product_name"`
	Price                float64  `json:"price"`
	Currency             string   `json:"currency"`
	AverageRating        *float64 `json:"average_rating,omitempty"`
	PriceRange           string   `json:"price_range,omitempty"`
	RecommendationReason string   `json:"recommendation_reason,omitempty"`
}

// ErrorData carries a human-readable failure message.
type ErrorData struct {
	Message string `json:"message"`
}

// DoneData is the empty terminal payload.
type DoneData struct{}

// Token builds a token event.
func Token(content string) Event {
	return Event{Kind: KindToken, Data: TokenData{Content: content}}
}

// ToolCall builds a tool_call event. Nil args are sent as an empty object.
func ToolCall(name string, args map[string]any) Event {
	if args == nil {
		args = map[string]any{}
	}
	return Event{Kind: KindToolCall, Data: ToolCallData{Name: name, Args: args}}
}

// ToolResult builds a tool_result event, truncating result to MaxToolResultLen characters.
func ToolResult(name, result string) Event {
	return Event{Kind: KindToolResult, Data: ToolResultData{Name: name, Result: Truncate(result, MaxToolResultLen)}}
}

// ApprovalRequired builds an approval_required event.
func ApprovalRequired(calls []ToolCallData, interruptIDs []string) Event {
	if interruptIDs == nil {
		interruptIDs = []string{}
	}
	return Event{Kind: KindApprovalRequired, Data: ApprovalRequiredData{ToolCalls: calls, InterruptIDs: interruptIDs}}
}

// Receipt builds a receipt event.
func Receipt(r ReceiptData) Event {
	return Event{Kind: KindReceipt, Data: r}
}

// Error builds an error event.
func Error(message string) Event {
	return Event{Kind: KindError, Data: ErrorData{Message: message}}
}

// Done builds the terminal done event.
func Done() Event {
	return Event{Kind: KindDone, Data: DoneData{}}
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
