// ABOUTME: In-memory fan-out of stream events to clients watching a session
// ABOUTME: Publishes every event of a turn to all subscribers of the session ID

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kimyungju/pricewise/internal/protocol"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// EventBroadcaster provides in-memory pub/sub of protocol events per session.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan protocol.Event // sessionID -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan protocol.Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for events of sessionID. The subscription is removed
// and its channel closed when ctx is cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, sessionID string) (<-chan protocol.Event, string) {
	subID := uuid.New().String()
	ch := make(chan protocol.Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionID]; !ok {
		b.subscribers[sessionID] = make(map[string]chan protocol.Event)
	}
	b.subscribers[sessionID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session_id", sessionID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionID, subID)
	}()

	return ch, subID
}

// Publish sends e to every subscriber of sessionID. Events are dropped for
// subscribers whose buffers are full.
func (b *EventBroadcaster) Publish(sessionID string, e protocol.Event) {
	if b == nil {
		return
	}
	// sends are non-blocking, so holding the read lock keeps Unsubscribe
	// from closing a channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[sessionID] {
		select {
		case ch <- e:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"session_id", sessionID,
				"sub_id", subID,
				"kind", e.Kind)
		}
	}
}

// Subscribers returns the number of subscribers of sessionID.
func (b *EventBroadcaster) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[sessionID])
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(sessionID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
	}

	b.logger.Debug("subscriber removed", "session_id", sessionID, "sub_id", subID)
}

// Close closes all subscriber channels.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sessionID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, sessionID)
	}
	b.logger.Debug("broadcaster closed")
}
