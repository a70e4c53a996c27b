// ABOUTME: Checkpointed agent runtime executing model, tool and extraction steps
// ABOUTME: Pauses on tool suspensions and resumes from persisted interrupts

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/kimyungju/pricewise/internal/approval"
	"github.com/kimyungju/pricewise/internal/compaction"
	"github.com/kimyungju/pricewise/internal/interrupt"
	"github.com/kimyungju/pricewise/internal/llm"
	"github.com/kimyungju/pricewise/internal/observability"
	"github.com/kimyungju/pricewise/internal/store"
	"github.com/kimyungju/pricewise/internal/tools"
)

// ErrInterruptPending is returned when a message arrives for a paused thread.
var ErrInterruptPending = errors.New("thread is waiting for an approval decision")

// ErrEmptyInput is returned when Input carries neither a message nor a decision.
var ErrEmptyInput = errors.New("input requires a message or a resume decision")

// ErrRecursionLimit is returned when a turn exceeds MaxSteps.
var ErrRecursionLimit = errors.New("recursion limit reached")

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = `You are Pricewise, a shopping assistant. Help the user find products, compare prices and stay within budget.
Use search_product to look up products and current prices. Use calculate_budget for arithmetic on prices.
Save products to the wishlist only when the user asks. Cite product URLs from search results.`

// StructuredPrompt instructs the receipt extraction step.
const StructuredPrompt = `Extract the final product recommendation from the conversation above as a receipt.
If no specific product was recommended, return an empty product_name.`

// DefaultMaxSteps bounds the steps of a single turn.
const DefaultMaxSteps = 25

// Config holds runtime options.
type Config struct {
	Model        string
	SystemPrompt string

	// KeepRecent is the history length at or below which no compaction happens.
	KeepRecent int

	// MaxSteps bounds the steps executed by one Stream call.
	MaxSteps int

	// InterruptBeforeTools pauses before every tools step without payloads.
	InterruptBeforeTools bool
}

// Input starts or resumes a turn. Exactly one field is set.
type Input struct {
	Message string
	Resume  *interrupt.ResumePayload
}

// Runtime executes turns against a checkpoint store.
type Runtime struct {
	provider    llm.Provider
	tools       *tools.Registry
	checkpoints store.CheckpointStore
	summarizer  compaction.Summarizer
	config      Config
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithSummarizer overrides the summarizer used for compaction.
func WithSummarizer(s compaction.Summarizer) Option {
	return func(r *Runtime) { r.summarizer = s }
}

// WithMetrics records compactions on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runtime) { r.logger = l }
}

// NewRuntime creates a Runtime. Compaction summarizes with the same provider
// and model unless WithSummarizer is given.
func NewRuntime(provider llm.Provider, registry *tools.Registry, checkpoints store.CheckpointStore, cfg Config, opts ...Option) *Runtime {
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.KeepRecent <= 0 {
		cfg.KeepRecent = compaction.DefaultKeepRecent
	}
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	r := &Runtime{
		provider:    provider,
		tools:       registry,
		checkpoints: checkpoints,
		config:      cfg,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.summarizer == nil {
		r.summarizer = llm.NewSummarizer(provider, cfg.Model)
	}
	r.logger = r.logger.With("component", "runtime")
	return r
}

// State returns the latest checkpoint of a thread, or nil when the thread
// has never run.
func (r *Runtime) State(ctx context.Context, threadID string) (*store.Checkpoint, error) {
	cp, err := r.checkpoints.GetCheckpoint(ctx, threadID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	return cp, nil
}

// Stream starts a turn and returns its events. Input errors are returned
// directly; failures after the turn started arrive as a final Event with Err.
// The channel is closed when the turn pauses, finishes or fails.
func (r *Runtime) Stream(ctx context.Context, threadID string, in Input) (<-chan Event, error) {
	cp, err := r.State(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		cp = &store.Checkpoint{ThreadID: threadID}
	}

	var resume *interrupt.ResumePayload
	switch {
	case in.Resume != nil:
		if !cp.Paused() {
			return nil, interrupt.ErrNoPendingInterrupt
		}
		resume = in.Resume
	case in.Message != "":
		if cp.Paused() {
			return nil, ErrInterruptPending
		}
		cp.Entries = append(cp.Entries, store.NewUserEntry(in.Message))
		cp.Receipt = nil
		cp.Next = []string{NodeAgent}
		if err := r.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
			return nil, fmt.Errorf("saving input: %w", err)
		}
	default:
		return nil, ErrEmptyInput
	}

	out := make(chan Event, 16)
	go r.run(ctx, cp, resume, out)
	return out, nil
}

func (r *Runtime) run(ctx context.Context, cp *store.Checkpoint, resume *interrupt.ResumePayload, out chan<- Event) {
	defer close(out)

	ctx, span := observability.StartSpan(ctx, "agent.turn", "thread.id", cp.ThreadID)
	defer span.End()

	emit := func(e Event) bool {
		select {
		case out <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}
	fail := func(err error) {
		observability.RecordError(span, err)
		if ctx.Err() == nil {
			r.logger.Error("turn failed", "thread_id", cp.ThreadID, "error", err)
		}
		emit(Event{Err: err})
	}

	for steps := 0; cp.Paused(); steps++ {
		node := cp.Next[0]
		if node == NodeTools && r.config.InterruptBeforeTools && resume == nil {
			r.logger.Debug("pausing before tools", "thread_id", cp.ThreadID)
			return
		}
		if steps >= r.config.MaxSteps {
			r.abandon(ctx, cp)
			fail(fmt.Errorf("%w after %d steps", ErrRecursionLimit, steps))
			return
		}

		var err error
		paused := false
		switch node {
		case NodeAgent:
			err = r.agentStep(ctx, cp, emit)
		case NodeTools:
			paused, err = r.toolsStep(ctx, cp, resume, emit)
			resume = nil
		case NodeStructured:
			err = r.structuredStep(ctx, cp, emit)
		default:
			err = fmt.Errorf("unknown step %q", node)
		}
		if err != nil {
			// a failed tools step stays resumable through the approval fallback
			if node != NodeTools {
				r.abandon(ctx, cp)
			}
			fail(fmt.Errorf("%s step: %w", node, err))
			return
		}
		// a step that ran is recorded even when the client has gone away
		if err := r.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
			if node != NodeTools {
				r.abandon(ctx, cp)
			}
			fail(fmt.Errorf("saving checkpoint: %w", err))
			return
		}
		if paused {
			r.logger.Info("turn paused for approval", "thread_id", cp.ThreadID, "tasks", len(cp.Tasks))
			return
		}
	}
}

// abandon clears the pending steps of a failed turn so the thread accepts
// new messages.
func (r *Runtime) abandon(ctx context.Context, cp *store.Checkpoint) {
	cp.Next = nil
	cp.Tasks = nil
	cp.PendingResults = nil
	if err := r.checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
		r.logger.Error("failed to reset checkpoint", "thread_id", cp.ThreadID, "error", err)
	}
}

func (r *Runtime) agentStep(ctx context.Context, cp *store.Checkpoint, emit func(Event) bool) error {
	ctx, span := observability.StartSpan(ctx, "agent.step", "step", NodeAgent)
	defer span.End()

	history := slices.Clone(cp.Entries)
	compacted, did, err := compaction.MaybeCompact(ctx, r.summarizer, history, r.config.KeepRecent)
	switch {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.logger.Warn("compaction failed, sending full history", "thread_id", cp.ThreadID, "error", err)
	case did:
		r.metrics.Compacted()
		history = compacted
	}

	chunks, err := r.provider.Complete(ctx, &llm.Request{
		Model:    r.config.Model,
		System:   r.config.SystemPrompt,
		Messages: history,
		Tools:    r.tools.Specs(),
	})
	if err != nil {
		return err
	}
	completion, err := llm.Collect(ctx, chunks, func(text string) {
		emit(Event{Mode: ModeMessages, Node: NodeAgent, Text: text})
	})
	if err != nil {
		return err
	}

	calls := completion.ToolCalls
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")
		}
		if calls[i].Args == nil {
			calls[i].Args = map[string]any{}
		}
	}
	cp.Entries = append(cp.Entries, store.NewAssistantEntry(completion.Content, calls...))
	if len(calls) > 0 {
		cp.Next = []string{NodeTools}
	} else {
		cp.Next = []string{NodeStructured}
	}
	emit(Event{Mode: ModeUpdates, Node: NodeAgent, ToolCalls: calls})
	return nil
}

// toolsStep executes every unresolved call of the last assistant entry. It
// reports paused when at least one call is still waiting for a decision.
func (r *Runtime) toolsStep(ctx context.Context, cp *store.Checkpoint, resume *interrupt.ResumePayload, emit func(Event) bool) (bool, error) {
	ctx, span := observability.StartSpan(ctx, "agent.step", "step", NodeTools)
	defer span.End()

	last, ok := cp.LastAssistant()
	if !ok || !last.HasToolCalls() {
		return false, errors.New("no tool calls to execute")
	}

	resolved := make(map[string]bool, len(cp.PendingResults))
	for _, e := range cp.PendingResults {
		resolved[e.ToolCallID] = true
	}
	tasks := make(map[string]store.Task, len(cp.Tasks))
	for _, t := range cp.Tasks {
		tasks[t.ID] = t
	}
	coarse := resume != nil && len(cp.Tasks) == 0

	var waiting []store.Task
	for _, call := range last.ToolCalls {
		if resolved[call.ID] {
			continue
		}

		var decision *bool
		task, suspended := tasks[call.ID]
		switch {
		case coarse:
			d, _ := resume.Bool()
			if !d {
				cp.PendingResults = append(cp.PendingResults, store.NewToolEntry(call.Name, call.ID, approval.Denial(call.Name)))
				continue
			}
			decision = &d
		case suspended:
			if resume != nil {
				decision = decisionFor(task, resume)
			}
			if decision == nil {
				waiting = append(waiting, task)
				continue
			}
		}

		outcome, err := r.tools.Execute(ctx, tools.Call{
			ID:        call.ID,
			Name:      call.Name,
			SessionID: cp.ThreadID,
			Args:      call.Args,
			Resume:    decision,
		})
		if err != nil {
			return false, err
		}
		if outcome.Suspended() {
			t, err := suspensionTask(call, task, outcome.Suspension)
			if err != nil {
				return false, err
			}
			waiting = append(waiting, t)
			continue
		}
		cp.PendingResults = append(cp.PendingResults, store.NewToolEntry(call.Name, call.ID, outcome.Result.Content))
	}

	cp.Tasks = waiting
	if len(waiting) > 0 {
		cp.Next = []string{NodeTools}
		return true, nil
	}

	results := orderResults(last.ToolCalls, cp.PendingResults)
	cp.Entries = append(cp.Entries, results...)
	cp.PendingResults = nil
	cp.Next = []string{NodeAgent}
	emit(Event{Mode: ModeUpdates, Node: NodeTools, ToolResults: results})
	return false, nil
}

func decisionFor(task store.Task, resume *interrupt.ResumePayload) *bool {
	for _, intr := range task.Interrupts {
		if d, ok := resume.DecisionFor(intr.ID); ok {
			return &d
		}
	}
	return nil
}

// suspensionTask records a suspension, reusing the interrupt ID of a
// previous suspension of the same call.
func suspensionTask(call store.ToolCall, previous store.Task, s *tools.Suspension) (store.Task, error) {
	value, err := json.Marshal(s)
	if err != nil {
		return store.Task{}, fmt.Errorf("encoding suspension of %s: %w", call.Name, err)
	}
	id := uuid.New().String()
	if len(previous.Interrupts) > 0 {
		id = previous.Interrupts[0].ID
	}
	return store.Task{
		ID:         call.ID,
		Name:       call.Name,
		Interrupts: []store.Interrupt{{ID: id, Value: value}},
	}, nil
}

func orderResults(calls []store.ToolCall, results []store.Entry) []store.Entry {
	byCall := make(map[string]store.Entry, len(results))
	for _, e := range results {
		byCall[e.ToolCallID] = e
	}
	ordered := make([]store.Entry, 0, len(results))
	for _, c := range calls {
		if e, ok := byCall[c.ID]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered
}

func (r *Runtime) structuredStep(ctx context.Context, cp *store.Checkpoint, emit func(Event) bool) error {
	ctx, span := observability.StartSpan(ctx, "agent.step", "step", NodeStructured)
	defer span.End()

	cp.Next = nil
	chunks, err := r.provider.Complete(ctx, &llm.Request{
		Model:    r.config.Model,
		System:   StructuredPrompt,
		Messages: cp.Entries,
		Schema: &llm.Schema{
			Name:        "Receipt",
			Description: "Final product recommendation",
			Definition:  tools.SchemaFor[store.Receipt](),
		},
	})
	if err == nil {
		var completion *llm.Completion
		completion, err = llm.Collect(ctx, chunks, func(text string) {
			emit(Event{Mode: ModeMessages, Node: NodeStructured, Text: text})
		})
		if err == nil {
			cp.Receipt, err = parseReceipt(completion.Content)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// the answer already streamed; a turn without a receipt is still complete
		r.logger.Warn("receipt extraction failed", "thread_id", cp.ThreadID, "error", err)
		cp.Receipt = nil
	}
	emit(Event{Mode: ModeUpdates, Node: NodeStructured, Receipt: cp.Receipt})
	return nil
}

func parseReceipt(content string) (*store.Receipt, error) {
	var receipt store.Receipt
	if err := json.Unmarshal([]byte(content), &receipt); err != nil {
		return nil, fmt.Errorf("decoding receipt: %w", err)
	}
	if strings.TrimSpace(receipt.ProductName) == "" {
		return nil, nil
	}
	return &receipt, nil
}
