package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresBlobStore persists blobs in the ledger_blobs table (see internal/db/migrations).
type PostgresBlobStore struct {
	db *sql.DB
}

// NewPostgresBlobStore returns a store over an open database, typically from db.Open.
func NewPostgresBlobStore(db *sql.DB) *PostgresBlobStore {
	return &PostgresBlobStore{db: db}
}

// Load returns the stored JSON for key, or nil when the row does not exist.
func (s *PostgresBlobStore) Load(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM ledger_blobs WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: load %s: %w", key, err)
	}
	return value, nil
}

// Save upserts the JSON for key.
func (s *PostgresBlobStore) Save(ctx context.Context, key string, blob []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO ledger_blobs (key, value, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, string(blob))
	if err != nil {
		return fmt.Errorf("ledger: save %s: %w", key, err)
	}
	return nil
}
