package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleLawyer Role = "lawyer"
	RoleClient Role = "client"
)

// Staff roles may manage invoices and clients
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdmin, RoleLawyer:
		return true
	default:
		return false
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLawyer, RoleClient:
		return true
	default:
		return false
	}
}

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Username       string
	HashedPassword string
	Role           Role
}

// Client details filled in on registration or by staff
type ClientProfile struct {
	FullName string
	TaxID    string
	Email    string
	Phone    string
	Address  string
}

// User to be created
// Profile is required for RoleClient and ignored for staff
type NewUser struct {
	Username string
	Password string
	Role     Role
	Profile  *ClientProfile
}
