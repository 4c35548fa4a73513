// Package invoice manages invoices through their lifecycle.
//
// Content changes are allowed while the invoice is editable. Status changes
// go through compare-and-set updates and leave a history record written in
// the same transaction.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/invoicestatus"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/repository"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Params struct {
	// Generated when empty
	Number        string
	RecipientID   uuid.UUID
	OperationDate time.Time
	PaymentMethod string
	TaxRate       decimal.Decimal
	// Zero means compute from items
	Total decimal.Decimal
	Notes string
	Items []ItemParams
}

type ListParams struct {
	Statuses []invoicestatus.Status
	Limit    int
	Offset   int
}

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
	issuer  Issuer
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
		logger:  l.WithGroup("invoice"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Create draft invoice, staff only
func (s *Service) Create(ctx context.Context, actor models.User, p Params) (models.Invoice, error) {
	var inv models.Invoice

	if !actor.Role.IsStaff() {
		return inv, apperrors.ErrForbidden
	}
	if err := validatePayment(p.PaymentMethod); err != nil {
		return inv, err
	}

	totals, err := ComputeTotals(p.Items, p.TaxRate, p.Total)
	if err != nil {
		return inv, err
	}

	now := s.now()
	number := strings.TrimSpace(p.Number)
	if number == "" {
		number = generateNumber(now)
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		if _, err := storage.Client().GetClient(ctx, p.RecipientID); err != nil {
			return err
		}

		inv, err = storage.Invoice().CreateInvoice(ctx, models.Invoice{
			Number:        number,
			Status:        invoicestatus.Draft,
			IssuerID:      actor.ID,
			RecipientID:   p.RecipientID,
			OperationDate: p.OperationDate,
			PaymentMethod: p.PaymentMethod,
			TaxRate:       p.TaxRate,
			TaxBase:       totals.TaxBase,
			Total:         totals.Total,
			Items:         totals.Items,
			Notes:         p.Notes,
			CreatedAt:     now,
			ModifiedAt:    now,
		})
		if err != nil {
			return err
		}

		return storage.Invoice().AddStatusChange(ctx, models.InvoiceStatusChange{
			InvoiceID: inv.ID,
			From:      invoicestatus.Unknown,
			To:        invoicestatus.Draft,
			ActorID:   actor.ID,
			Reason:    "created",
			ChangedAt: now,
		})
	})
	if err != nil {
		return models.Invoice{}, fmt.Errorf("can't create invoice. Err: %w", err)
	}

	s.logger.Info("invoice created", "invoice_id", inv.ID, "number", inv.Number, "actor_id", actor.ID)

	return inv, nil
}

// Staff see any invoice, client only the ones addressed to them
// Foreign invoice looks missing to the client
func (s *Service) Get(ctx context.Context, actor models.User, id uuid.UUID) (models.Invoice, error) {
	inv, err := s.storage.Invoice().GetInvoice(ctx, id)
	if err != nil {
		return inv, err
	}

	if err := s.checkVisible(ctx, s.storage, actor, inv); err != nil {
		return models.Invoice{}, err
	}

	return inv, nil
}

func (s *Service) List(ctx context.Context, actor models.User, p ListParams) ([]models.Invoice, error) {
	opts := repository.ListInvoicesOpts{
		Statuses: p.Statuses,
		Limit:    p.Limit,
		Offset:   max(p.Offset, 0),
	}
	if opts.Limit <= 0 {
		opts.Limit = defaultListLimit
	}
	opts.Limit = min(opts.Limit, maxListLimit)

	if !actor.Role.IsStaff() {
		client, err := s.storage.Client().GetClientByUserID(ctx, actor.ID)
		if errors.Is(err, apperrors.ErrClientNotFound) {
			return []models.Invoice{}, nil
		}
		if err != nil {
			return nil, err
		}
		opts.RecipientID = &client.ID
	}

	return s.storage.Invoice().ListInvoices(ctx, opts)
}

// Replace content of editable invoice
func (s *Service) Update(ctx context.Context, actor models.User, id uuid.UUID, p Params) (models.Invoice, error) {
	var inv models.Invoice

	if !actor.Role.IsStaff() {
		return inv, apperrors.ErrForbidden
	}
	if err := validatePayment(p.PaymentMethod); err != nil {
		return inv, err
	}

	current, err := s.storage.Invoice().GetInvoice(ctx, id)
	if err != nil {
		return inv, err
	}
	if !current.Status.IsEditable() {
		return inv, apperrors.ErrInvoiceLocked
	}

	totals, err := ComputeTotals(p.Items, p.TaxRate, p.Total)
	if err != nil {
		return inv, err
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		if _, err := storage.Client().GetClient(ctx, p.RecipientID); err != nil {
			return err
		}

		inv, err = storage.Invoice().UpdateContent(ctx, models.Invoice{
			ID:            id,
			RecipientID:   p.RecipientID,
			OperationDate: p.OperationDate,
			PaymentMethod: p.PaymentMethod,
			TaxRate:       p.TaxRate,
			TaxBase:       totals.TaxBase,
			Total:         totals.Total,
			Items:         totals.Items,
			Notes:         p.Notes,
			ModifiedAt:    s.now(),
		}, editableStatuses())
		return err
	})
	if err != nil {
		// Status moved on between read and update
		if errors.Is(err, apperrors.ErrInvoiceStatusConflict) {
			return models.Invoice{}, apperrors.ErrInvoiceLocked
		}
		return models.Invoice{}, fmt.Errorf("can't update invoice. Err: %w", err)
	}

	return inv, nil
}

// Move invoice to the next status of the lifecycle, staff only
func (s *Service) Advance(ctx context.Context, actor models.User, id uuid.UUID) (models.Invoice, error) {
	if !actor.Role.IsStaff() {
		return models.Invoice{}, apperrors.ErrForbidden
	}

	return s.transition(ctx, actor, id, "", func(inv models.Invoice) (invoicestatus.Status, error) {
		next, ok := inv.Status.Next()
		if !ok {
			return invoicestatus.Unknown, apperrors.ErrInvoiceNoSuccessor
		}
		return next, nil
	})
}

// Void invoice before the client is notified, staff only
func (s *Service) Cancel(ctx context.Context, actor models.User, id uuid.UUID, reason string) (models.Invoice, error) {
	if !actor.Role.IsStaff() {
		return models.Invoice{}, apperrors.ErrForbidden
	}

	return s.transition(ctx, actor, id, reason, func(inv models.Invoice) (invoicestatus.Status, error) {
		switch {
		case inv.Status.IsCancellable():
			return invoicestatus.Cancelled, nil
		case inv.Status == invoicestatus.Cancelled:
			return invoicestatus.Unknown, apperrors.ErrInvoiceAlreadyCancelled
		case inv.Status.AlreadyNotified():
			return invoicestatus.Unknown, apperrors.ErrInvoiceAlreadyNotified
		default:
			return invoicestatus.Unknown, apperrors.ErrInvoiceNotCancellable
		}
	})
}

// Record refusal of sent or notified invoice
// Recipient client may reject own invoice, staff may record rejection of any
func (s *Service) Reject(ctx context.Context, actor models.User, id uuid.UUID, reason string) (models.Invoice, error) {
	return s.transition(ctx, actor, id, reason, func(inv models.Invoice) (invoicestatus.Status, error) {
		if !inv.Status.IsRejectable() {
			return invoicestatus.Unknown, apperrors.ErrInvoiceNotRejectable
		}
		return invoicestatus.Rejected, nil
	})
}

// Status history, readable by staff whatever the status is
// Invoice of other client looks like missing one
func (s *Service) History(ctx context.Context, actor models.User, id uuid.UUID) ([]models.InvoiceStatusChange, error) {
	inv, err := s.storage.Invoice().GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.checkVisible(ctx, s.storage, actor, inv); err != nil {
		return nil, err
	}
	if !invoicestatus.IsAuditable(actor.Role, inv.Status) {
		return nil, apperrors.ErrForbidden
	}

	return s.storage.Invoice().ListStatusChanges(ctx, id)
}

// Change status in single transaction: read, decide, compare-and-set, record history
func (s *Service) transition(
	ctx context.Context,
	actor models.User,
	id uuid.UUID,
	reason string,
	decide func(models.Invoice) (invoicestatus.Status, error),
) (models.Invoice, error) {
	var (
		inv  models.Invoice
		from invoicestatus.Status
	)

	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error

		inv, err = storage.Invoice().GetInvoice(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkVisible(ctx, storage, actor, inv); err != nil {
			return err
		}

		from = inv.Status
		to, err := decide(inv)
		if err != nil {
			return err
		}
		if !from.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", apperrors.ErrInvoiceStatusConflict, from, to)
		}

		now := s.now()
		if err := storage.Invoice().UpdateStatus(ctx, id, from, to, now); err != nil {
			return err
		}

		err = storage.Invoice().AddStatusChange(ctx, models.InvoiceStatusChange{
			InvoiceID: id,
			From:      from,
			To:        to,
			ActorID:   actor.ID,
			Reason:    strings.TrimSpace(reason),
			ChangedAt: now,
		})
		if err != nil {
			return err
		}

		inv.Status = to
		inv.ModifiedAt = now
		return nil
	})
	if err != nil {
		return models.Invoice{}, err
	}

	s.logger.Info("invoice status changed", "invoice_id", id, "from", from, "to", inv.Status, "actor_id", actor.ID)

	return inv, nil
}

func (s *Service) checkVisible(ctx context.Context, storage repository.Storage, actor models.User, inv models.Invoice) error {
	if actor.Role.IsStaff() {
		return nil
	}

	client, err := storage.Client().GetClientByUserID(ctx, actor.ID)
	switch {
	case errors.Is(err, apperrors.ErrClientNotFound):
		return apperrors.ErrInvoiceNotFound
	case err != nil:
		return err
	case client.ID != inv.RecipientID:
		return apperrors.ErrInvoiceNotFound
	}

	return nil
}

func editableStatuses() []invoicestatus.Status {
	var editable []invoicestatus.Status
	for _, st := range invoicestatus.Values() {
		if st.IsEditable() {
			editable = append(editable, st)
		}
	}
	return editable
}

func validatePayment(method string) error {
	switch method {
	case models.PaymentTransfer, models.PaymentCard, models.PaymentCash, models.PaymentDirect:
		return nil
	default:
		return fmt.Errorf("%w: unknown payment method %q", apperrors.ErrInvoiceInvalid, method)
	}
}

// Number like 2025-1A2B3C4D, year of creation and random suffix
func generateNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("%d-%s", now.Year(), suffix)
}
