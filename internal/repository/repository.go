package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/bufete/internal/invoicestatus"
	"github.com/nkiryanov/bufete/internal/models"
)

// Storage gives access to every repository over the same connection or transaction
type Storage interface {
	User() UserRepo
	Client() ClientRepo
	Refresh() RefreshTokenRepo
	Blacklist() BlacklistRepo
	Invoice() InvoiceRepo

	// Run fn in a transaction; commit if fn returns nil, rollback otherwise
	// Nested calls use savepoints
	InTx(ctx context.Context, fn func(Storage) error) error
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, username string, hashedPassword string, role models.Role) (models.User, error)

	// Get user by it's id or username
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
}

type ClientRepo interface {
	// Has to return apperrors.ErrClientAlreadyExists if tax id is taken
	CreateClient(ctx context.Context, client models.Client) (models.Client, error)

	// Has to return apperrors.ErrClientNotFound if not found
	GetClient(ctx context.Context, id uuid.UUID) (models.Client, error)
	GetClientByUserID(ctx context.Context, userID uuid.UUID) (models.Client, error)

	ListClients(ctx context.Context, limit int, offset int) ([]models.Client, error)
}

// RefreshToken repository interface
type RefreshTokenRepo interface {
	// Save token in repository
	Save(ctx context.Context, token models.RefreshToken) (models.RefreshToken, error)

	// Return the token if it exists in the database, even expired or used
	// If not exists must return apperrors.ErrRefreshTokenNotFound
	Get(ctx context.Context, token string) (models.RefreshToken, error)

	// Mark token as used and return it
	// If the token is already used, must not overwrite 'usedAt' and return apperrors.ErrRefreshTokenIsUsed
	// If the token is revoked must return apperrors.ErrRefreshTokenRevoked
	GetAndMarkUsed(ctx context.Context, token string) (models.RefreshToken, error)

	// Not revoked tokens of the user with either usable refresh token or live access token at 'now'
	// Used (rotated) tokens are listed while their access token is not expired
	ListActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]models.RefreshToken, error)

	// Set revoked_at for the token; revoking twice keeps the first timestamp
	Revoke(ctx context.Context, token string, at time.Time) error

	// Set revoked_at for every not yet revoked token of the user in a single statement
	RevokeAllByUser(ctx context.Context, userID uuid.UUID, at time.Time) (revoked int64, err error)

	// Delete tokens expired before 'now'
	DeleteExpired(ctx context.Context, now time.Time) (deleted int64, err error)
}

type BlacklistRepo interface {
	// Insert record; existing hash is left untouched and is not an error
	Add(ctx context.Context, token models.BlacklistedToken) error

	Exists(ctx context.Context, tokenHash string) (bool, error)

	// Delete records with expires_at strictly before 'now'
	DeleteExpired(ctx context.Context, now time.Time) (deleted int64, err error)

	// Count all records and those expired at 'now'
	Count(ctx context.Context, now time.Time) (total int64, expired int64, err error)
}

type ListInvoicesOpts struct {
	RecipientID *uuid.UUID
	Statuses    []invoicestatus.Status
	Limit       int
	Offset      int
}

type InvoiceRepo interface {
	// Has to return apperrors.ErrInvoiceNumberTaken if number is taken
	CreateInvoice(ctx context.Context, invoice models.Invoice) (models.Invoice, error)

	// Has to return apperrors.ErrInvoiceNotFound if not found
	GetInvoice(ctx context.Context, id uuid.UUID) (models.Invoice, error)

	ListInvoices(ctx context.Context, opts ListInvoicesOpts) ([]models.Invoice, error)

	// Replace content of the invoice only if its status is one of 'expected'
	// Has to return apperrors.ErrInvoiceStatusConflict if status differs (or ErrInvoiceNotFound)
	UpdateContent(ctx context.Context, invoice models.Invoice, expected []invoicestatus.Status) (models.Invoice, error)

	// Compare-and-set status
	// Has to return apperrors.ErrInvoiceStatusConflict if current status is not 'from'
	UpdateStatus(ctx context.Context, id uuid.UUID, from invoicestatus.Status, to invoicestatus.Status, at time.Time) error

	AddStatusChange(ctx context.Context, change models.InvoiceStatusChange) error
	ListStatusChanges(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceStatusChange, error)
}
