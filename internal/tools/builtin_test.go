// ABOUTME: Tests for calculate_budget and the wishlist tools
// ABOUTME: Wishlist tests run against the in-memory store

package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimyungju/pricewise/internal/store"
)

func TestBudget_WithinBudget(t *testing.T) {
	out, err := BudgetTool{}.Execute(context.Background(), Call{Args: map[string]any{
		"prices": []float64{49.99, 30},
		"budget": 100,
	}})
	require.NoError(t, err)
	assert.Contains(t, out.Result.Content, "Subtotal: 79.99")
	assert.Contains(t, out.Result.Content, "Total: 79.99")
	assert.Contains(t, out.Result.Content, "Remaining: 20.01 (within budget)")
	assert.NotContains(t, out.Result.Content, "Tax")
}

func TestBudget_OverBudgetWithTax(t *testing.T) {
	out, err := BudgetTool{}.Execute(context.Background(), Call{Args: map[string]any{
		"prices":   []float64{100},
		"budget":   100,
		"tax_rate": 0.1,
	}})
	require.NoError(t, err)
	assert.Contains(t, out.Result.Content, "Tax (10.0%): 10.00")
	assert.Contains(t, out.Result.Content, "Total: 110.00")
	assert.Contains(t, out.Result.Content, "Over budget by 10.00")
}

func TestBudget_RejectsNegativePrice(t *testing.T) {
	_, err := BudgetTool{}.Execute(context.Background(), Call{Args: map[string]any{
		"prices": []float64{-1},
		"budget": 10,
	}})
	assert.Error(t, err)
}

func TestWishlist_AddAndView(t *testing.T) {
	s := store.NewMemoryStore()
	add := NewAddToWishlistTool(s)
	view := NewViewWishlistTool(s)
	ctx := context.Background()

	out, err := view.Execute(ctx, Call{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "Your wishlist is empty.", out.Result.Content)

	out, err = add.Execute(ctx, Call{SessionID: "s1", Args: map[string]any{
		"product_name": "Kindle Paperwhite", "price": 149.99, "url": "https://example.com/kindle",
	}})
	require.NoError(t, err)
	assert.Equal(t, "Added 'Kindle Paperwhite' (149.99 USD) to your wishlist.", out.Result.Content)

	out, err = view.Execute(ctx, Call{SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "1. Kindle Paperwhite - 149.99 USD\n   URL: https://example.com/kindle", out.Result.Content)

	out, err = view.Execute(ctx, Call{SessionID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, "Your wishlist is empty.", out.Result.Content, "wishlists are per session")
}

func TestWishlist_RequiresSession(t *testing.T) {
	s := store.NewMemoryStore()
	_, err := NewAddToWishlistTool(s).Execute(context.Background(), Call{Args: map[string]any{"product_name": "x", "price": 1}})
	assert.ErrorIs(t, err, errNoSession)

	_, err = NewViewWishlistTool(s).Execute(context.Background(), Call{})
	assert.ErrorIs(t, err, errNoSession)
}
