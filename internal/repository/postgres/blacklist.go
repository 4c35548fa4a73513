package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/bufete/internal/models"
)

type BlacklistRepo struct {
	DB DBTX
}

const addBlacklisted = `-- name: AddBlacklistedToken
INSERT INTO blacklisted_tokens (token_hash, user_id, expires_at, blacklisted_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (token_hash) DO NOTHING
`

// Add token hash to blacklist
// Second insert of the same hash keeps the first record
func (r *BlacklistRepo) Add(ctx context.Context, t models.BlacklistedToken) error {
	_, err := r.DB.Exec(ctx, addBlacklisted, t.TokenHash, t.UserID, t.ExpiresAt, t.BlacklistedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const existsBlacklisted = `-- name: ExistsBlacklistedToken
SELECT EXISTS (SELECT 1 FROM blacklisted_tokens WHERE token_hash = $1)
`

func (r *BlacklistRepo) Exists(ctx context.Context, tokenHash string) (bool, error) {
	rows, _ := r.DB.Query(ctx, existsBlacklisted, tokenHash)
	exists, err := pgx.CollectOneRow(rows, pgx.RowTo[bool])
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return exists, nil
}

const deleteExpiredBlacklisted = `-- name: DeleteExpiredBlacklistedTokens
DELETE FROM blacklisted_tokens
WHERE expires_at < $1
`

func (r *BlacklistRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredBlacklisted, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

const countBlacklisted = `-- name: CountBlacklistedTokens
SELECT count(*), count(*) FILTER (WHERE expires_at < $1)
FROM blacklisted_tokens
`

func (r *BlacklistRepo) Count(ctx context.Context, now time.Time) (total int64, expired int64, err error) {
	err = r.DB.QueryRow(ctx, countBlacklisted, now).Scan(&total, &expired)
	if err != nil {
		return 0, 0, fmt.Errorf("db error: %w", err)
	}

	return total, expired, nil
}
