// ABOUTME: Store interfaces and data types for pricewise persistence
// ABOUTME: Defines conversation entries, runtime checkpoints, wishlist items and the Store contract

package store

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// EntryKind tags a conversation entry.
type EntryKind string

// Entry kinds. System entries only appear in transient views (compaction summaries).
const (
	KindUser      EntryKind = "user"
	KindAssistant EntryKind = "assistant"
	KindTool      EntryKind = "tool"
	KindSystem    EntryKind = "system"
)

// ToolCall is a tool-invocation request attached to an assistant entry.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Entry is one element of a session's ordered conversation log.
type Entry struct {
	ID         string     `json:"id"`
	Kind       EntryKind  `json:"kind"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant only
	ToolName   string     `json:"tool_name,omitempty"`    // tool only
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool only, links to ToolCall.ID
	CreatedAt  time.Time  `json:"created_at"`
}

// IsToolResult reports whether the entry is a tool response.
func (e Entry) IsToolResult() bool {
	return e.Kind == KindTool
}

// HasToolCalls reports whether the entry is an assistant entry requesting tools.
func (e Entry) HasToolCalls() bool {
	return e.Kind == KindAssistant && len(e.ToolCalls) > 0
}

// NewUserEntry creates a user entry with a fresh ID.
func NewUserEntry(content string) Entry {
	return Entry{ID: uuid.New().String(), Kind: KindUser, Content: content, CreatedAt: time.Now().UTC()}
}

// NewAssistantEntry creates an assistant entry, optionally carrying tool calls.
func NewAssistantEntry(content string, calls ...ToolCall) Entry {
	return Entry{ID: uuid.New().String(), Kind: KindAssistant, Content: content, ToolCalls: calls, CreatedAt: time.Now().UTC()}
}

// NewToolEntry creates a tool response entry for the call with the given ID.
func NewToolEntry(toolName, callID, content string) Entry {
	return Entry{
		ID:         uuid.New().String(),
		Kind:       KindTool,
		Content:    content,
		ToolName:   toolName,
		ToolCallID: callID,
		CreatedAt:  time.Now().UTC(),
	}
}

// NewSystemEntry creates a synthetic system entry.
func NewSystemEntry(content string) Entry {
	return Entry{ID: uuid.New().String(), Kind: KindSystem, Content: content, CreatedAt: time.Now().UTC()}
}

// Receipt is the structured product summary extracted at the end of a turn.
type Receipt struct {
	ProductName          string   `json:"product_name" jsonschema:"description=Name of the recommended product"`
	Price                float64  `json:"price" jsonschema:"description=Price of the recommended product"`
	Currency             string   `json:"currency" jsonschema:"description=ISO currency code such as USD"`
	AverageRating        *float64 `json:"average_rating,omitempty" jsonschema:"description=Average customer rating out of 5"`
	PriceRange           string   `json:"price_range,omitempty" jsonschema:"description=Observed price range across sellers"`
	RecommendationReason string   `json:"recommendation_reason,omitempty" jsonschema:"description=Why this product is recommended"`
}

// Interrupt is a structured suspension payload raised by a task.
// Value is kept raw; interpretation happens at the interrupt boundary.
type Interrupt struct {
	ID    string          `json:"id"`
	Value json.RawMessage `json:"value"`
}

// Task is a suspended unit of work inside a paused step.
type Task struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Interrupts []Interrupt `json:"interrupts,omitempty"`
}

// Checkpoint is the durable runtime state of one conversation thread.
type Checkpoint struct {
	ThreadID       string    `json:"thread_id"`
	Entries        []Entry   `json:"entries"`
	Next           []string  `json:"next,omitempty"`
	Tasks          []Task    `json:"tasks,omitempty"`
	PendingResults []Entry   `json:"pending_results,omitempty"`
	Receipt        *Receipt  `json:"receipt,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Paused reports whether the runtime has pending steps for this thread.
func (c *Checkpoint) Paused() bool {
	return len(c.Next) > 0
}

// LastAssistant returns the most recent assistant entry, if any.
func (c *Checkpoint) LastAssistant() (Entry, bool) {
	for i := len(c.Entries) - 1; i >= 0; i-- {
		if c.Entries[i].Kind == KindAssistant {
			return c.Entries[i], true
		}
	}
	return Entry{}, false
}

// Clone returns a copy that shares no slices with c.
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.Entries = cloneEntries(c.Entries)
	out.PendingResults = cloneEntries(c.PendingResults)
	out.Next = slices.Clone(c.Next)
	out.Tasks = make([]Task, len(c.Tasks))
	for i, t := range c.Tasks {
		t.Interrupts = slices.Clone(t.Interrupts)
		out.Tasks[i] = t
	}
	if c.Receipt != nil {
		r := *c.Receipt
		out.Receipt = &r
	}
	return &out
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.ToolCalls = slices.Clone(e.ToolCalls)
		out[i] = e
	}
	return out
}

// WishlistItem is a product a user saved during a session.
type WishlistItem struct {
	ID          string
	SessionID   string
	ProductName string
	Price       float64
	Currency    string
	URL         string
	CreatedAt   time.Time
}

// CheckpointStore persists runtime checkpoints keyed by thread ID.
type CheckpointStore interface {
	// GetCheckpoint returns ErrNotFound when nothing was saved for the thread.
	GetCheckpoint(ctx context.Context, threadID string) (*Checkpoint, error)
	SaveCheckpoint(ctx context.Context, cp *Checkpoint) error
}

// WishlistStore persists wishlist items keyed by session ID.
type WishlistStore interface {
	AddWishlistItem(ctx context.Context, item *WishlistItem) error
	ListWishlist(ctx context.Context, sessionID string) ([]*WishlistItem, error)
}

// Store is the full persistence contract implemented by every backend.
type Store interface {
	CheckpointStore
	WishlistStore
	Close() error
}
