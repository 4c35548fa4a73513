package models

import (
	"time"

	"github.com/google/uuid"
)

// Client is an invoice recipient
// UserID is nil for clients managed by staff without their own login
type Client struct {
	ID        uuid.UUID
	UserID    *uuid.UUID
	CreatedAt time.Time
	FullName  string
	TaxID     string // NIF, NIE or CIF
	Email     string
	Phone     string // E.164
	Address   string
}
