package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshColumns = `id, user_id, token, created_at, expires_at, used_at, revoked_at, access_hash, access_expires_at`

const saveToken = `-- name: SaveRefreshToken
INSERT INTO refresh_tokens (id, user_id, token, created_at, expires_at, used_at, revoked_at, access_hash, access_expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + refreshColumns

func (r *RefreshTokenRepo) Save(ctx context.Context, t models.RefreshToken) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, saveToken,
		t.ID, t.UserID, t.Token, t.CreatedAt, t.ExpiresAt, t.UsedAt, t.RevokedAt, t.AccessHash, t.AccessExpiresAt,
	)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return token, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

const getToken = `-- name: GetRefreshToken
SELECT ` + refreshColumns + `
FROM refresh_tokens
WHERE token = $1
`

// Get token
// It should return result even it expired, used or revoked
func (r *RefreshTokenRepo) Get(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, getToken, tokenString)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, pgx.ErrNoRows):
		return token, apperrors.ErrRefreshTokenNotFound
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

// Lock the row to compare previous used_at and revoked_at with the new one
const markTokenUsed = `-- name: MarkRefreshTokenUsed
WITH prev AS (
	SELECT id, used_at, revoked_at FROM refresh_tokens
	WHERE token = $1
	FOR UPDATE
)
UPDATE refresh_tokens AS t
SET used_at = COALESCE(t.used_at, $2)
FROM prev
WHERE t.id = prev.id AND prev.revoked_at IS NULL
RETURNING t.id, t.user_id, t.token, t.created_at, t.expires_at, prev.used_at, t.revoked_at, t.access_hash, t.access_expires_at
`

// Mark token as used
// If token is used already it returns error and keeps the first used_at
// Revoked tokens are never marked
func (r *RefreshTokenRepo) GetAndMarkUsed(ctx context.Context, tokenString string) (models.RefreshToken, error) {
	now := time.Now()
	rows, _ := r.DB.Query(ctx, markTokenUsed, tokenString, now)
	token, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil && token.UsedAt == nil: // previous used_at was null
		token.UsedAt = &now
		return token, nil
	case err == nil:
		return token, apperrors.ErrRefreshTokenIsUsed
	case errors.Is(err, pgx.ErrNoRows):
		// Either the token does not exist or it is revoked
		existed, getErr := r.Get(ctx, tokenString)
		if getErr != nil {
			return existed, getErr
		}
		return existed, apperrors.ErrRefreshTokenRevoked
	default:
		return token, fmt.Errorf("db error: %w", err)
	}
}

const listActiveByUser = `-- name: ListActiveRefreshTokensByUser
SELECT ` + refreshColumns + `
FROM refresh_tokens
WHERE user_id = $1 AND revoked_at IS NULL AND (
	(used_at IS NULL AND expires_at > $2) OR access_expires_at > $2
)
ORDER BY created_at
`

// Not revoked tokens of the user that still may be presented: unused and unexpired refresh token,
// or access token issued with it that has not expired yet (rotated tokens included)

func (r *RefreshTokenRepo) ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error) {
	rows, _ := r.DB.Query(ctx, listActiveByUser, userID, now)
	tokens, err := pgx.CollectRows(rows, rowToRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return tokens, nil
}

const revokeToken = `-- name: RevokeRefreshToken
UPDATE refresh_tokens
SET revoked_at = COALESCE(revoked_at, $2)
WHERE token = $1
`

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenString string, at time.Time) error {
	tag, err := r.DB.Exec(ctx, revokeToken, tokenString, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrRefreshTokenNotFound
	}

	return nil
}

const revokeAllByUser = `-- name: RevokeAllRefreshTokensByUser
UPDATE refresh_tokens
SET revoked_at = $2
WHERE user_id = $1 AND revoked_at IS NULL
`

func (r *RefreshTokenRepo) RevokeAllByUser(ctx context.Context, userID uuid.UUID, at time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, revokeAllByUser, userID, at)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

const deleteExpiredTokens = `-- name: DeleteExpiredRefreshTokens
DELETE FROM refresh_tokens
WHERE expires_at < $1
`

func (r *RefreshTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.DB.Exec(ctx, deleteExpiredTokens, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}

	return tag.RowsAffected(), nil
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshToken, error) {
	var t models.RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.CreatedAt, &t.ExpiresAt, &t.UsedAt, &t.RevokedAt, &t.AccessHash, &t.AccessExpiresAt)
	return t, err
}
