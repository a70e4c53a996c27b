// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists checkpoints and wishlist items with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store", "backend", "sqlite")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for concurrent readers while a turn writes its checkpoint
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS wishlist_items (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			price REAL NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_wishlist_session_created
			ON wishlist_items(session_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetCheckpoint loads the latest checkpoint for a thread.
func (s *SQLiteStore) GetCheckpoint(ctx context.Context, threadID string) (*Checkpoint, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint: %w", err)
	}
	return decodeCheckpoint([]byte(state))
}

// SaveCheckpoint inserts or replaces the checkpoint for cp.ThreadID.
func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	stamp(cp)
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			state = excluded.state,
			updated_at = excluded.updated_at
	`, cp.ThreadID, string(data), cp.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// AddWishlistItem stores a wishlist item. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) AddWishlistItem(ctx context.Context, item *WishlistItem) error {
	prepareWishlistItem(item)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wishlist_items (id, session_id, product_name, price, currency, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.SessionID, item.ProductName, item.Price, item.Currency, item.URL,
		item.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("inserting wishlist item: %w", err)
	}
	return nil
}

// ListWishlist returns a session's wishlist in insertion order.
func (s *SQLiteStore) ListWishlist(ctx context.Context, sessionID string) ([]*WishlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, product_name, price, currency, url, created_at
		FROM wishlist_items
		WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying wishlist: %w", err)
	}
	defer rows.Close()
	return scanWishlist(rows)
}

func scanWishlist(rows *sql.Rows) ([]*WishlistItem, error) {
	var items []*WishlistItem
	for rows.Next() {
		var item WishlistItem
		var createdAt string
		if err := rows.Scan(&item.ID, &item.SessionID, &item.ProductName, &item.Price,
			&item.Currency, &item.URL, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning wishlist item: %w", err)
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		item.CreatedAt = t
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating wishlist: %w", err)
	}
	return items, nil
}

// Compile-time interface check
var _ Store = (*SQLiteStore)(nil)
