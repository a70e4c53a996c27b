// ABOUTME: In-memory Store implementation for tests and USE_MEMORY_SAVER deployments
// ABOUTME: State lives only as long as the process

package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint      // keyed by thread ID
	wishlists   map[string][]*WishlistItem // keyed by session ID
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		checkpoints: make(map[string]*Checkpoint),
		wishlists:   make(map[string][]*WishlistItem),
	}
}

// GetCheckpoint returns a copy of the stored checkpoint.
func (m *MemoryStore) GetCheckpoint(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, ok := m.checkpoints[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return cp.Clone(), nil
}

// SaveCheckpoint stores a copy of cp.
func (m *MemoryStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	stamp(cp)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[cp.ThreadID] = cp.Clone()
	return nil
}

// AddWishlistItem appends a copy of item to its session's wishlist.
func (m *MemoryStore) AddWishlistItem(ctx context.Context, item *WishlistItem) error {
	prepareWishlistItem(item)

	m.mu.Lock()
	defer m.mu.Unlock()

	it := *item
	m.wishlists[it.SessionID] = append(m.wishlists[it.SessionID], &it)
	return nil
}

// ListWishlist returns copies of a session's wishlist items in insertion order.
func (m *MemoryStore) ListWishlist(ctx context.Context, sessionID string) ([]*WishlistItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := m.wishlists[sessionID]
	out := make([]*WishlistItem, 0, len(items))
	for _, item := range items {
		it := *item
		out = append(out, &it)
	}
	return out, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
