// ABOUTME: Session registry mapping session IDs to runtime threads
// ABOUTME: Rehydrates sessions from the checkpoint backend after a restart

package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/kimyungju/pricewise/internal/store"
)

var (
	// ErrSessionNotFound is returned for unknown or unrecoverable session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTurnInProgress is returned when a session already has an open turn.
	ErrTurnInProgress = errors.New("turn already in progress")
)

// Session is a conversation addressed by ID. ThreadID keys its runtime state.
type Session struct {
	ID       string
	ThreadID string

	busy atomic.Bool
}

// BeginTurn marks the session busy until the returned release func is called.
func (s *Session) BeginTurn() (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrTurnInProgress
	}
	var once sync.Once
	return func() { once.Do(func() { s.busy.Store(false) }) }, nil
}

// Busy reports whether a turn is currently open.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// CreatedHook is called after a session is created or rehydrated.
type CreatedHook func(s *Session, rehydrated bool)

// Registry is the process-wide session cache.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	checkpoints store.CheckpointStore
	group       singleflight.Group
	onCreate    CreatedHook
	logger      *slog.Logger
}

// NewRegistry creates a registry backed by checkpoints for rehydration.
func NewRegistry(checkpoints store.CheckpointStore, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:    make(map[string]*Session),
		checkpoints: checkpoints,
		logger:      logger.With("component", "session"),
	}
}

// OnCreate registers a hook called for every new or rehydrated session.
func (r *Registry) OnCreate(hook CreatedHook) {
	r.onCreate = hook
}

// Create registers a new session with a fresh ID.
func (r *Registry) Create() *Session {
	id := uuid.New().String()
	s := &Session{ID: id, ThreadID: id}

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Info("session created", "session_id", id)
	if r.onCreate != nil {
		r.onCreate(s, false)
	}
	return s
}

// Resolve returns the session for id, rehydrating it from the checkpoint
// backend when it is not cached. Only threads with persisted conversation
// entries are recoverable.
func (r *Registry) Resolve(ctx context.Context, id string) (*Session, error) {
	if s, ok := r.lookup(id); ok {
		return s, nil
	}
	if id == "" {
		return nil, ErrSessionNotFound
	}

	v, err, _ := r.group.Do(id, func() (any, error) {
		if s, ok := r.lookup(id); ok {
			return s, nil
		}
		return r.rehydrate(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

func (r *Registry) lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) rehydrate(ctx context.Context, id string) (*Session, error) {
	cp, err := r.checkpoints.GetCheckpoint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		r.logger.Warn("checkpoint lookup failed", "session_id", id, "error", err)
		return nil, ErrSessionNotFound
	}
	if len(cp.Entries) == 0 {
		return nil, ErrSessionNotFound
	}

	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{ID: id, ThreadID: id}
		r.sessions[id] = s
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Info("session rehydrated", "session_id", id, "entries", len(cp.Entries))
		if r.onCreate != nil {
			r.onCreate(s, true)
		}
	}
	return s, nil
}

// Len returns the number of cached sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
