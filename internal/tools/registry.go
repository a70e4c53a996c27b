// ABOUTME: Registry of tools available to the model
// ABOUTME: Validates arguments, records metrics and traces every execution

package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kimyungju/pricewise/internal/observability"
)

// Spec describes a tool to the model.
type Spec struct {
	Name        string
	Description string
	Schema      []byte
}

// Registry holds tools by name in registration order.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(metrics *observability.Metrics, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:   make(map[string]Tool),
		metrics: metrics,
		logger:  logger.With("component", "tools"),
	}
}

// Register adds t. Registering a name twice is an error.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
	return nil
}

// Wrap replaces the tool registered under name with wrap(tool).
func (r *Registry) Wrap(name string, wrap func(Tool) Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tools[name]
	if !ok {
		return fmt.Errorf("tool %q not registered", name)
	}
	r.tools[name] = wrap(t)
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Specs describes every tool in registration order.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]Spec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, Spec{Name: t.Name(), Description: t.Description(), Schema: t.Schema()})
	}
	return specs
}

// Execute runs call.Name. Unknown tools, invalid arguments and tool errors
// become error results. Only context cancellation is returned as an error.
func (r *Registry) Execute(ctx context.Context, call Call) (Outcome, error) {
	ctx, span := observability.StartSpan(ctx, "tool.execute", "tool.name", call.Name, "tool.call_id", call.ID)
	defer span.End()
	start := time.Now()

	t, ok := r.Get(call.Name)
	if !ok {
		r.metrics.ToolExecuted(call.Name, "error", time.Since(start))
		return Failed(fmt.Sprintf("Error: unknown tool %q", call.Name)), nil
	}

	if err := ValidateArgs(t.Schema(), call.Args); err != nil {
		r.logger.Warn("invalid tool arguments", "tool", call.Name, "error", err)
		r.metrics.ToolExecuted(call.Name, "error", time.Since(start))
		return Failed(fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)), nil
	}

	out, err := t.Execute(ctx, call)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			observability.RecordError(span, ctxErr)
			return Outcome{}, ctxErr
		}
		r.logger.Warn("tool failed", "tool", call.Name, "error", err)
		observability.RecordError(span, err)
		r.metrics.ToolExecuted(call.Name, "error", time.Since(start))
		return Failed(fmt.Sprintf("Error: %v", err)), nil
	}

	status := "success"
	switch {
	case out.Suspended():
		status = "suspended"
	case out.Result == nil:
		out = Completed("")
	case out.Result.IsError:
		status = "error"
	}
	span.SetAttributes(attribute.String("tool.status", status))
	r.metrics.ToolExecuted(call.Name, status, time.Since(start))
	return out, nil
}
