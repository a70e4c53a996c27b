// ABOUTME: calculate_budget tool comparing product prices against a budget
// ABOUTME: Pure computation, so it never needs approval

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BudgetQuery is the argument schema of calculate_budget.
type BudgetQuery struct {
	Prices  []float64 `json:"prices" jsonschema:"description=Item prices to add up,minItems=1"`
	Budget  float64   `json:"budget" jsonschema:"description=Total budget available,minimum=0"`
	TaxRate float64   `json:"tax_rate,omitempty" jsonschema:"description=Sales tax as a fraction such as 0.08,minimum=0,maximum=1"`
}

// BudgetTool implements calculate_budget.
type BudgetTool struct{}

func (BudgetTool) Name() string { return "calculate_budget" }

func (BudgetTool) Description() string {
	return "Add up item prices (with optional sales tax) and compare the total against a budget."
}

func (BudgetTool) Schema() json.RawMessage { return SchemaFor[BudgetQuery]() }

// Execute computes the total and the remaining budget.
func (BudgetTool) Execute(ctx context.Context, call Call) (Outcome, error) {
	var q BudgetQuery
	if err := call.Decode(&q); err != nil {
		return Outcome{}, err
	}
	if len(q.Prices) == 0 {
		return Outcome{}, errors.New("at least one price is required")
	}

	var subtotal float64
	for _, p := range q.Prices {
		if p < 0 {
			return Outcome{}, fmt.Errorf("price %.2f is negative", p)
		}
		subtotal += p
	}
	tax := subtotal * q.TaxRate
	total := subtotal + tax

	var b strings.Builder
	fmt.Fprintf(&b, "Items: %d\n", len(q.Prices))
	fmt.Fprintf(&b, "Subtotal: %.2f\n", subtotal)
	if q.TaxRate > 0 {
		fmt.Fprintf(&b, "Tax (%.1f%%): %.2f\n", q.TaxRate*100, tax)
	}
	fmt.Fprintf(&b, "Total: %.2f\n", total)
	fmt.Fprintf(&b, "Budget: %.2f\n", q.Budget)
	if remaining := q.Budget - total; remaining >= 0 {
		fmt.Fprintf(&b, "Remaining: %.2f (within budget)", remaining)
	} else {
		fmt.Fprintf(&b, "Over budget by %.2f", -remaining)
	}
	return Completed(b.String()), nil
}
