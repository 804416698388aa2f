package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const getTokenSQL = `SELECT user_id FROM access_tokens WHERE token_hash = $1`

// TokenRepository resolves bearer tokens to user identities backed by
// PostgreSQL. Tokens are stored as HMAC-SHA256 hex digests.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a TokenRepository that uses the given pool.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// UserByHash looks up the user owning the token with the given hash.
// Returns an error wrapping pgx.ErrNoRows when no such token exists.
func (r *TokenRepository) UserByHash(ctx context.Context, hash string) (int64, error) {
	var userID int64
	err := r.pool.QueryRow(ctx, getTokenSQL, hash).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("token not found: %w", err)
		}
		return 0, fmt.Errorf("finding token by hash: %w", err)
	}
	return userID, nil
}
