package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")
	ErrUserInvalid       = errors.New("user data is invalid")
	ErrForbidden         = errors.New("action not allowed for user role")

	ErrClientNotFound      = errors.New("client not found")
	ErrClientAlreadyExists = errors.New("client with this tax id already exists")
	ErrClientProfileNeeded = errors.New("client profile is required for client role")
	ErrClientInvalid       = errors.New("client profile is invalid")
	ErrPhoneInvalid        = errors.New("phone number is invalid")
	ErrTaxIDInvalid        = errors.New("tax id is invalid")

	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenIsUsed   = errors.New("refresh token is used")
	ErrRefreshTokenExpired  = errors.New("refresh token is expired")
	ErrRefreshTokenRevoked  = errors.New("refresh token is revoked")

	ErrAccessTokenRevoked = errors.New("access token is revoked")

	ErrInvoiceNotFound         = errors.New("invoice not found")
	ErrInvoiceNumberTaken      = errors.New("invoice number already exists")
	ErrInvoiceLocked           = errors.New("invoice can no longer be edited")
	ErrInvoiceAlreadyNotified  = errors.New("invoice already notified to the client")
	ErrInvoiceAlreadyCancelled = errors.New("invoice already cancelled")
	ErrInvoiceNotCancellable   = errors.New("invoice can not be cancelled")
	ErrInvoiceNotRejectable    = errors.New("invoice can not be rejected")
	ErrInvoiceNoSuccessor      = errors.New("invoice status has no successor")
	ErrInvoiceStatusConflict   = errors.New("invoice status changed concurrently")
	ErrInvoiceTotalMismatch    = errors.New("invoice total does not match line items")
	ErrInvoiceNoItems          = errors.New("invoice must have at least one line item")
	ErrInvoiceInvalid          = errors.New("invoice data is invalid")
)
