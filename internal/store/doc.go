// Package store persists pricewise runtime state.
//
// A Checkpoint holds everything the runtime needs to continue a thread: the
// ordered conversation log, the pending steps, suspended tasks with their
// interrupt payloads and the structured receipt of the last finished turn.
// Wishlist items are stored separately, keyed by session ID.
//
// Backends:
//
//   - MemoryStore: process-local, used by tests and USE_MEMORY_SAVER
//   - SQLiteStore: modernc.org/sqlite with WAL, the default durable backend
//   - PostgresStore: lib/pq, selected by CHECKPOINT_POSTGRES_URI
//
// All methods accept context.Context. GetCheckpoint returns ErrNotFound for
// unknown threads.
package store
