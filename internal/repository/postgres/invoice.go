package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/invoicestatus"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/repository"
)

type InvoiceRepo struct {
	DB DBTX
}

const invoiceColumns = `id, number, status, issuer_id, recipient_id, operation_date, payment_method, tax_rate, tax_base, total, notes, created_at, modified_at`

const createInvoice = `-- name: CreateInvoice
INSERT INTO invoices (id, number, status, issuer_id, recipient_id, operation_date, payment_method, tax_rate, tax_base, total, notes, created_at, modified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + invoiceColumns

// Create invoice together with its items
// Call it in transaction, otherwise header may be saved without items
func (r *InvoiceRepo) CreateInvoice(ctx context.Context, inv models.Invoice) (models.Invoice, error) {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createInvoice,
		inv.ID, inv.Number, inv.Status.String(), inv.IssuerID, inv.RecipientID, inv.OperationDate,
		inv.PaymentMethod, inv.TaxRate, inv.TaxBase, inv.Total, inv.Notes, inv.CreatedAt, inv.ModifiedAt,
	)
	saved, err := pgx.CollectOneRow(rows, rowToInvoice)
	if err != nil {
		if isUniqueViolation(err) {
			return saved, apperrors.ErrInvoiceNumberTaken
		}
		return saved, fmt.Errorf("db error: %w", err)
	}

	saved.Items, err = r.insertItems(ctx, saved.ID, inv.Items)
	if err != nil {
		return saved, err
	}

	return saved, nil
}

const getInvoice = `-- name: GetInvoice
SELECT ` + invoiceColumns + ` FROM invoices
WHERE id = $1
`

func (r *InvoiceRepo) GetInvoice(ctx context.Context, id uuid.UUID) (models.Invoice, error) {
	rows, _ := r.DB.Query(ctx, getInvoice, id)
	inv, err := pgx.CollectOneRow(rows, rowToInvoice)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return inv, apperrors.ErrInvoiceNotFound
	default:
		return inv, fmt.Errorf("db error: %w", err)
	}

	items, err := r.listItems(ctx, []uuid.UUID{inv.ID})
	if err != nil {
		return inv, err
	}
	inv.Items = items[inv.ID]

	return inv, nil
}

// Filters are optional: NULL recipient or empty statuses match everything
const listInvoices = `-- name: ListInvoices
SELECT ` + invoiceColumns + ` FROM invoices
WHERE ($1::uuid IS NULL OR recipient_id = $1)
  AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
ORDER BY created_at DESC, id
LIMIT $3 OFFSET $4
`

func (r *InvoiceRepo) ListInvoices(ctx context.Context, opts repository.ListInvoicesOpts) ([]models.Invoice, error) {
	statuses := make([]string, 0, len(opts.Statuses))
	for _, s := range opts.Statuses {
		statuses = append(statuses, s.String())
	}

	rows, _ := r.DB.Query(ctx, listInvoices, opts.RecipientID, statuses, opts.Limit, opts.Offset)
	invoices, err := pgx.CollectRows(rows, rowToInvoice)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(invoices))
	for _, inv := range invoices {
		ids = append(ids, inv.ID)
	}

	items, err := r.listItems(ctx, ids)
	if err != nil {
		return nil, err
	}

	for i := range invoices {
		invoices[i].Items = items[invoices[i].ID]
	}

	return invoices, nil
}

const updateContent = `-- name: UpdateInvoiceContent
UPDATE invoices
SET recipient_id = $2, operation_date = $3, payment_method = $4, tax_rate = $5,
    tax_base = $6, total = $7, notes = $8, modified_at = $9
WHERE id = $1 AND status = ANY($10::text[])
RETURNING ` + invoiceColumns

const deleteItems = `-- name: DeleteInvoiceItems
DELETE FROM invoice_items WHERE invoice_id = $1
`

// Replace header fields and items, keeping number, status and issuer
func (r *InvoiceRepo) UpdateContent(ctx context.Context, inv models.Invoice, expected []invoicestatus.Status) (models.Invoice, error) {
	statuses := make([]string, 0, len(expected))
	for _, s := range expected {
		statuses = append(statuses, s.String())
	}

	rows, _ := r.DB.Query(ctx, updateContent,
		inv.ID, inv.RecipientID, inv.OperationDate, inv.PaymentMethod, inv.TaxRate,
		inv.TaxBase, inv.Total, inv.Notes, inv.ModifiedAt, statuses,
	)
	saved, err := pgx.CollectOneRow(rows, rowToInvoice)

	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		return saved, r.missingOrConflict(ctx, inv.ID)
	default:
		return saved, fmt.Errorf("db error: %w", err)
	}

	if _, err := r.DB.Exec(ctx, deleteItems, inv.ID); err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}

	saved.Items, err = r.insertItems(ctx, saved.ID, inv.Items)
	if err != nil {
		return saved, err
	}

	return saved, nil
}

const updateStatus = `-- name: UpdateInvoiceStatus
UPDATE invoices
SET status = $3, modified_at = $4
WHERE id = $1 AND status = $2
`

func (r *InvoiceRepo) UpdateStatus(ctx context.Context, id uuid.UUID, from invoicestatus.Status, to invoicestatus.Status, at time.Time) error {
	tag, err := r.DB.Exec(ctx, updateStatus, id, from.String(), to.String(), at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, id)
	}

	return nil
}

const addStatusChange = `-- name: AddInvoiceStatusChange
INSERT INTO invoice_status_history (invoice_id, from_status, to_status, actor_id, reason, changed_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (r *InvoiceRepo) AddStatusChange(ctx context.Context, c models.InvoiceStatusChange) error {
	_, err := r.DB.Exec(ctx, addStatusChange, c.InvoiceID, statusToDB(c.From), statusToDB(c.To), c.ActorID, c.Reason, c.ChangedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

const listStatusChanges = `-- name: ListInvoiceStatusChanges
SELECT id, invoice_id, from_status, to_status, actor_id, reason, changed_at
FROM invoice_status_history
WHERE invoice_id = $1
ORDER BY id
`

func (r *InvoiceRepo) ListStatusChanges(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceStatusChange, error) {
	rows, _ := r.DB.Query(ctx, listStatusChanges, invoiceID)
	changes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.InvoiceStatusChange, error) {
		var (
			c        models.InvoiceStatusChange
			from, to string
		)
		err := row.Scan(&c.ID, &c.InvoiceID, &from, &to, &c.ActorID, &c.Reason, &c.ChangedAt)
		c.From, c.To = invoicestatus.Parse(from), invoicestatus.Parse(to)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return changes, nil
}

const existsInvoice = `-- name: ExistsInvoice
SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1)
`

// Explain why conditional update touched no rows
func (r *InvoiceRepo) missingOrConflict(ctx context.Context, id uuid.UUID) error {
	rows, _ := r.DB.Query(ctx, existsInvoice, id)
	exists, err := pgx.CollectOneRow(rows, pgx.RowTo[bool])

	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case !exists:
		return apperrors.ErrInvoiceNotFound
	default:
		return apperrors.ErrInvoiceStatusConflict
	}
}

const insertItem = `-- name: InsertInvoiceItem
INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price, line_total)
VALUES ($1, $2, $3, $4, $5, $6)
`

// Positions are renumbered from 1 in slice order
func (r *InvoiceRepo) insertItems(ctx context.Context, invoiceID uuid.UUID, items []models.InvoiceItem) ([]models.InvoiceItem, error) {
	saved := make([]models.InvoiceItem, 0, len(items))

	for i, item := range items {
		item.Position = i + 1
		_, err := r.DB.Exec(ctx, insertItem, invoiceID, item.Position, item.Description, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		saved = append(saved, item)
	}

	return saved, nil
}

const listItems = `-- name: ListInvoiceItems
SELECT invoice_id, position, description, quantity, unit_price, line_total
FROM invoice_items
WHERE invoice_id = ANY($1::uuid[])
ORDER BY invoice_id, position
`

func (r *InvoiceRepo) listItems(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID][]models.InvoiceItem, error) {
	items := make(map[uuid.UUID][]models.InvoiceItem, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return items, nil
	}

	rows, _ := r.DB.Query(ctx, listItems, invoiceIDs)
	var (
		invoiceID uuid.UUID
		item      models.InvoiceItem
	)
	_, err := pgx.ForEachRow(rows, []any{&invoiceID, &item.Position, &item.Description, &item.Quantity, &item.UnitPrice, &item.LineTotal}, func() error {
		items[invoiceID] = append(items[invoiceID], item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return items, nil
}

func rowToInvoice(row pgx.CollectableRow) (models.Invoice, error) {
	var (
		inv    models.Invoice
		status string
	)
	err := row.Scan(
		&inv.ID, &inv.Number, &status, &inv.IssuerID, &inv.RecipientID, &inv.OperationDate, &inv.PaymentMethod,
		&inv.TaxRate, &inv.TaxBase, &inv.Total, &inv.Notes, &inv.CreatedAt, &inv.ModifiedAt,
	)
	inv.Status = invoicestatus.Parse(status)
	return inv, err
}

// Unknown is stored as empty string, e.g. 'from' of the creation record
func statusToDB(s invoicestatus.Status) string {
	if !s.Known() {
		return ""
	}
	return s.String()
}
