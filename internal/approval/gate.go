// ABOUTME: RequiresApproval wrapper and registry gating helper
// ABOUTME: Denied calls produce a fixed message instead of running the tool

package approval

import (
	"context"
	"fmt"

	"github.com/kimyungju/pricewise/internal/tools"
)

// DefaultGated lists the tools gated when no configuration says otherwise.
var DefaultGated = []string{"search_product", "add_to_wishlist"}

// Denial is the tool result recorded when the user rejects a call.
func Denial(toolName string) string {
	return fmt.Sprintf("User denied execution of tool '%s'. Do not retry this tool unless the user asks.", toolName)
}

type gated struct {
	tools.Tool
}

// RequiresApproval wraps t so every call waits for a decision.
func RequiresApproval(t tools.Tool) tools.Tool {
	if IsGated(t) {
		return t
	}
	return gated{Tool: t}
}

// IsGated reports whether t was wrapped by RequiresApproval.
func IsGated(t tools.Tool) bool {
	_, ok := t.(gated)
	return ok
}

func (g gated) Execute(ctx context.Context, call tools.Call) (tools.Outcome, error) {
	switch {
	case call.Resume == nil:
		return tools.Suspend(g.Name(), call.Args), nil
	case !*call.Resume:
		return tools.Completed(Denial(g.Name())), nil
	default:
		return g.Tool.Execute(ctx, call)
	}
}

// Gate wraps the named tools in reg. Names that are not registered are an error.
func Gate(reg *tools.Registry, names ...string) error {
	for _, name := range names {
		if err := reg.Wrap(name, RequiresApproval); err != nil {
			return fmt.Errorf("gating %s: %w", name, err)
		}
	}
	return nil
}
