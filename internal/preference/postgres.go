package preference

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB interface for database operations (compatible with pgxpool.Pool and pgxmock)
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// PGStore stores preferences in the preferences table
type PGStore struct {
	db DB
}

// NewPGStore creates a PostgreSQL backed store
func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// NewPGStoreWithDB creates a store with a custom DB interface
func NewPGStoreWithDB(db DB) *PGStore {
	return &PGStore{db: db}
}

// Get retrieves a preference by key
func (s *PGStore) Get(ctx context.Context, key string) (string, error) {
	query := `
		SELECT value
		FROM preferences
		WHERE key = $1
	`

	var value string
	err := s.db.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}

	return value, nil
}

// Set inserts or replaces a preference
func (s *PGStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO preferences (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = NOW()
	`

	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

// Delete removes a preference, missing keys are not an error
func (s *PGStore) Delete(ctx context.Context, key string) error {
	query := `DELETE FROM preferences WHERE key = $1`
	if _, err := s.db.Exec(ctx, query, key); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}
