// Package session keeps bearer tokens revocable: a blacklist of token hashes,
// bulk revocation of every session of a user and cleanup of expired records.
//
// The service has no timers. Maintenance is triggered from outside,
// e.g. by 'bufetectl maintenance' from cron or the admin endpoint.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/repository"
)

type Option func(*Service)

// Override clock, tests only
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	storage repository.Storage
	logger  logger.Logger
	now     func() time.Time
}

func NewService(storage repository.Storage, l logger.Logger, opts ...Option) (*Service, error) {
	if storage == nil {
		return nil, errors.New("storage must not be nil")
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	s := &Service{
		storage: storage,
		logger:  l.WithGroup("session"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Blacklist the token until it expires
// Blacklisting the same token again changes nothing
func (s *Service) Blacklist(ctx context.Context, token string, userID uuid.UUID, expiresAt time.Time) error {
	if token == "" {
		return errors.New("token must not be empty")
	}

	return s.blacklistHash(ctx, HashToken(token), userID, expiresAt)
}

func (s *Service) blacklistHash(ctx context.Context, tokenHash string, userID uuid.UUID, expiresAt time.Time) error {
	err := s.storage.Blacklist().Add(ctx, models.BlacklistedToken{
		TokenHash:     tokenHash,
		UserID:        userID,
		ExpiresAt:     expiresAt,
		BlacklistedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("can't blacklist token. Err: %w", err)
	}

	return nil
}

func (s *Service) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return s.IsHashBlacklisted(ctx, HashToken(token))
}

func (s *Service) IsHashBlacklisted(ctx context.Context, tokenHash string) (bool, error) {
	blacklisted, err := s.storage.Blacklist().Exists(ctx, tokenHash)
	if err != nil {
		return false, fmt.Errorf("can't check blacklist. Err: %w", err)
	}

	return blacklisted, nil
}

// Revoke single refresh token, e.g. on logout
func (s *Service) RevokeRefresh(ctx context.Context, token string) error {
	err := s.storage.Refresh().Revoke(ctx, token, s.now())
	if err != nil {
		return fmt.Errorf("can't revoke refresh token. Err: %w", err)
	}

	return nil
}

// Delete blacklist records expired strictly before now
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	deleted, err := s.storage.Blacklist().DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("can't cleanup blacklist. Err: %w", err)
	}

	return deleted, nil
}

// Terminate every session of the user
//
// Usable refresh tokens and every live access token of the user (rotated ones included)
// are blacklisted one by one, then all refresh tokens of the user are revoked with a single statement.
// A token issued between the two steps is revoked but not blacklisted; revocation alone
// is enough to refuse it on refresh and its access token dies with its short TTL.
// Returns the number of sessions that had a usable token.
func (s *Service) BlacklistAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	now := s.now()

	active, err := s.storage.Refresh().ListActiveByUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("can't list user sessions. Err: %w", err)
	}

	for _, t := range active {
		if t.UsedAt == nil && t.ExpiresAt.After(now) {
			if err := s.Blacklist(ctx, t.Token, userID, t.ExpiresAt); err != nil {
				return 0, err
			}
		}

		if t.AccessHash != "" && t.AccessExpiresAt.After(now) {
			if err := s.blacklistHash(ctx, t.AccessHash, userID, t.AccessExpiresAt); err != nil {
				return 0, err
			}
		}
	}

	revoked, err := s.storage.Refresh().RevokeAllByUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("can't revoke user sessions. Err: %w", err)
	}

	s.logger.Info("all sessions terminated", "user_id", userID, "active", len(active), "revoked", revoked)

	return len(active), nil
}

// Purge expired blacklist records and expired refresh tokens
func (s *Service) PerformMaintenance(ctx context.Context) (models.MaintenanceReport, error) {
	var report models.MaintenanceReport

	purged, err := s.CleanupExpired(ctx)
	if err != nil {
		return report, err
	}
	report.BlacklistPurged = purged

	purged, err = s.storage.Refresh().DeleteExpired(ctx, s.now())
	if err != nil {
		return report, fmt.Errorf("can't purge refresh tokens. Err: %w", err)
	}
	report.RefreshPurged = purged

	s.logger.Info("maintenance done", "blacklist_purged", report.BlacklistPurged, "refresh_purged", report.RefreshPurged)

	return report, nil
}

func (s *Service) Stats(ctx context.Context) (models.BlacklistStats, error) {
	total, expired, err := s.storage.Blacklist().Count(ctx, s.now())
	if err != nil {
		return models.BlacklistStats{}, fmt.Errorf("can't count blacklist. Err: %w", err)
	}

	return models.BlacklistStats{
		TotalBlacklisted: total,
		ExpiredTokens:    expired,
		ActiveTokens:     total - expired,
	}, nil
}
