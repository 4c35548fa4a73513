package models

import (
	"time"

	"github.com/google/uuid"
)

type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time // nil if token not used
	RevokedAt *time.Time // nil if token not revoked

	// Hash of the access token issued together with this refresh token
	// Lets bulk revocation blacklist access tokens it never saw in raw form
	AccessHash      string
	AccessExpiresAt time.Time
}

// Token may still be exchanged for a new pair
func (t RefreshToken) IsActive(now time.Time) bool {
	return t.UsedAt == nil && t.RevokedAt == nil && t.ExpiresAt.After(now)
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issues by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Parsed and verified access token
type AccessClaims struct {
	TokenID   string
	UserID    uuid.UUID
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Blacklist record; the raw token value is never stored
type BlacklistedToken struct {
	TokenHash     string
	UserID        uuid.UUID
	ExpiresAt     time.Time
	BlacklistedAt time.Time
}

type BlacklistStats struct {
	TotalBlacklisted int64 `json:"totalBlacklisted"`
	ExpiredTokens    int64 `json:"expiredTokens"`
	ActiveTokens     int64 `json:"activeTokens"`
}

type MaintenanceReport struct {
	BlacklistPurged int64 `json:"blacklistPurged"`
	RefreshPurged   int64 `json:"refreshPurged"`
}

// Authenticated request: the user and the access token it came with
type Session struct {
	User        User
	AccessToken string
	Claims      AccessClaims
}
