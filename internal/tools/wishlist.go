// ABOUTME: Wishlist tools that save and list products for the current session
// ABOUTME: The session is taken from the call envelope, never from ambient state

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kimyungju/pricewise/internal/store"
)

// errNoSession is returned when a wishlist call carries no session.
var errNoSession = errors.New("wishlist requires a session")

// WishlistAdd is the argument schema of add_to_wishlist.
type WishlistAdd struct {
	ProductName string  `json:"product_name" jsonschema:"description=Name of the product to save"`
	Price       float64 `json:"price" jsonschema:"description=Product price,minimum=0"`
	Currency    string  `json:"currency,omitempty" jsonschema:"description=ISO currency code,default=USD"`
	URL         string  `json:"url,omitempty" jsonschema:"description=Product page URL"`
}

// AddToWishlistTool implements add_to_wishlist.
type AddToWishlistTool struct {
	store store.WishlistStore
}

// NewAddToWishlistTool creates the tool.
func NewAddToWishlistTool(s store.WishlistStore) *AddToWishlistTool {
	return &AddToWishlistTool{store: s}
}

func (t *AddToWishlistTool) Name() string { return "add_to_wishlist" }

func (t *AddToWishlistTool) Description() string {
	return "Save a product to the user's wishlist for this session."
}

func (t *AddToWishlistTool) Schema() json.RawMessage { return SchemaFor[WishlistAdd]() }

// Execute stores the product under call.SessionID.
func (t *AddToWishlistTool) Execute(ctx context.Context, call Call) (Outcome, error) {
	if call.SessionID == "" {
		return Outcome{}, errNoSession
	}
	var a WishlistAdd
	if err := call.Decode(&a); err != nil {
		return Outcome{}, err
	}
	if a.Currency == "" {
		a.Currency = "USD"
	}

	item := &store.WishlistItem{
		SessionID:   call.SessionID,
		ProductName: a.ProductName,
		Price:       a.Price,
		Currency:    a.Currency,
		URL:         a.URL,
	}
	if err := t.store.AddWishlistItem(ctx, item); err != nil {
		return Outcome{}, fmt.Errorf("saving wishlist item: %w", err)
	}
	return Completed(fmt.Sprintf("Added '%s' (%.2f %s) to your wishlist.", a.ProductName, a.Price, a.Currency)), nil
}

// WishlistView is the (empty) argument schema of view_wishlist.
type WishlistView struct{}

// ViewWishlistTool implements view_wishlist.
type ViewWishlistTool struct {
	store store.WishlistStore
}

// NewViewWishlistTool creates the tool.
func NewViewWishlistTool(s store.WishlistStore) *ViewWishlistTool {
	return &ViewWishlistTool{store: s}
}

func (t *ViewWishlistTool) Name() string { return "view_wishlist" }

func (t *ViewWishlistTool) Description() string {
	return "List the products saved to the user's wishlist in this session."
}

func (t *ViewWishlistTool) Schema() json.RawMessage { return SchemaFor[WishlistView]() }

// Execute lists the wishlist of call.SessionID.
func (t *ViewWishlistTool) Execute(ctx context.Context, call Call) (Outcome, error) {
	if call.SessionID == "" {
		return Outcome{}, errNoSession
	}
	items, err := t.store.ListWishlist(ctx, call.SessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("loading wishlist: %w", err)
	}
	if len(items) == 0 {
		return Completed("Your wishlist is empty."), nil
	}

	lines := make([]string, 0, len(items))
	for i, item := range items {
		line := fmt.Sprintf("%d. %s - %.2f %s", i+1, item.ProductName, item.Price, item.Currency)
		if item.URL != "" {
			line += "\n   URL: " + item.URL
		}
		lines = append(lines, line)
	}
	return Completed(strings.Join(lines, "\n")), nil
}
