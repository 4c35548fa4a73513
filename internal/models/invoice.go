package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/bufete/internal/invoicestatus"
)

const (
	PaymentTransfer = "transfer"
	PaymentCard     = "card"
	PaymentCash     = "cash"
	PaymentDirect   = "direct_debit"
)

type Invoice struct {
	ID            uuid.UUID
	Number        string
	Status        invoicestatus.Status
	IssuerID      uuid.UUID // lawyer or admin who created the invoice
	RecipientID   uuid.UUID // client
	OperationDate time.Time
	PaymentMethod string
	TaxRate       decimal.Decimal // percent, e.g. 21
	TaxBase       decimal.Decimal
	Total         decimal.Decimal
	Items         []InvoiceItem
	Notes         string
	CreatedAt     time.Time
	ModifiedAt    time.Time
}

type InvoiceItem struct {
	Position    int
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	LineTotal   decimal.Decimal
}

// One row of the invoice audit trail
type InvoiceStatusChange struct {
	ID        int64
	InvoiceID uuid.UUID
	From      invoicestatus.Status
	To        invoicestatus.Status
	ActorID   uuid.UUID
	Reason    string
	ChangedAt time.Time
}
