package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists credential records in the user_tokens table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a store backed by pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Get returns the record for email, or (nil, nil) when no row exists.
func (s *PostgresStore) Get(ctx context.Context, email string) (*Record, error) {
	const q = `
		SELECT access_token, refresh_token, expiry, updated_at
		FROM user_tokens
		WHERE email = $1`

	var rec Record
	var updatedAt time.Time
	err := s.pool.QueryRow(ctx, q, email).Scan(&rec.AccessToken, &rec.RefreshToken, &rec.Expiry, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user_tokens: %w", err)
	}
	rec.UpdatedAt = updatedAt
	return &rec, nil
}

// Put upserts the record for email.
func (s *PostgresStore) Put(ctx context.Context, email string, rec *Record) error {
	const q = `
		INSERT INTO user_tokens (email, access_token, refresh_token, expiry, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expiry = EXCLUDED.expiry,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.pool.Exec(ctx, q, email, rec.AccessToken, rec.RefreshToken, rec.Expiry, rec.UpdatedAt); err != nil {
		return fmt.Errorf("upsert user_tokens: %w", err)
	}
	return nil
}
