// ABOUTME: Postgres implementation of the Store interface using lib/pq
// ABOUTME: Durable checkpoint backend selected by CHECKPOINT_POSTGRES_URI

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
)

// PostgresConfig holds connection pool settings for the Postgres backend.
type PostgresConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns the pool settings used when none are given.
func DefaultPostgresConfig() *PostgresConfig {
	return &PostgresConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore implements the Store interface using Postgres
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore connects to dsn, verifies the connection and creates the schema.
func NewPostgresStore(dsn string, config *PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPostgresConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := newPostgresStoreWithDB(db)
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s.logger.Info("Postgres store initialized")
	return s, nil
}

func newPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "store", "backend", "postgres"),
	}
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			state JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS wishlist_items (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			product_name TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_wishlist_session_created
			ON wishlist_items(session_id, created_at);
	`)
	return err
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.logger.Info("closing Postgres store")
	return s.db.Close()
}

// GetCheckpoint loads the latest checkpoint for a thread.
func (s *PostgresStore) GetCheckpoint(ctx context.Context, threadID string) (*Checkpoint, error) {
	var state []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM checkpoints WHERE thread_id = $1`, threadID,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint: %w", err)
	}
	return decodeCheckpoint(state)
}

// SaveCheckpoint upserts the checkpoint for cp.ThreadID.
func (s *PostgresStore) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	stamp(cp)
	data, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, state, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_id) DO UPDATE SET
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, cp.ThreadID, string(data), cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

// AddWishlistItem stores a wishlist item. ID and CreatedAt are filled in when empty.
func (s *PostgresStore) AddWishlistItem(ctx context.Context, item *WishlistItem) error {
	prepareWishlistItem(item)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wishlist_items (id, session_id, product_name, price, currency, url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, item.ID, item.SessionID, item.ProductName, item.Price, item.Currency, item.URL, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting wishlist item: %w", err)
	}
	return nil
}

// ListWishlist returns a session's wishlist in insertion order.
func (s *PostgresStore) ListWishlist(ctx context.Context, sessionID string) ([]*WishlistItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, product_name, price, currency, url, created_at
		FROM wishlist_items
		WHERE session_id = $1
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying wishlist: %w", err)
	}
	defer rows.Close()

	var items []*WishlistItem
	for rows.Next() {
		var item WishlistItem
		if err := rows.Scan(&item.ID, &item.SessionID, &item.ProductName, &item.Price,
			&item.Currency, &item.URL, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning wishlist item: %w", err)
		}
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating wishlist: %w", err)
	}
	return items, nil
}

var _ Store = (*PostgresStore)(nil)
