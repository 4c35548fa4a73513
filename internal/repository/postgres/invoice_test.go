package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/invoicestatus"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/repository"
	"github.com/nkiryanov/bufete/internal/testutil"
)

func Test_InvoiceRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	dec := testutil.Dec

	// Invoice fixture with issuer and recipient saved in tx
	newInvoice := func(t *testing.T, tx pgx.Tx, number string) models.Invoice {
		issuer, err := (&UserRepo{DB: tx}).CreateUser(t.Context(), "lawyer-"+number, "pwd", models.RoleLawyer)
		require.NoError(t, err)
		client, err := (&ClientRepo{DB: tx}).CreateClient(t.Context(), models.Client{FullName: "Client " + number, TaxID: "T" + number})
		require.NoError(t, err)

		now := time.Now()
		return models.Invoice{
			Number:        number,
			Status:        invoicestatus.Draft,
			IssuerID:      issuer.ID,
			RecipientID:   client.ID,
			OperationDate: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
			PaymentMethod: models.PaymentTransfer,
			TaxRate:       dec("21"),
			TaxBase:       dec("800.00"),
			Total:         dec("968.00"),
			Items: []models.InvoiceItem{
				{Description: "Consulta", Quantity: dec("1"), UnitPrice: dec("500"), LineTotal: dec("605.00")},
				{Description: "Escrito", Quantity: dec("2"), UnitPrice: dec("150"), LineTotal: dec("363.00")},
			},
			CreatedAt:  now,
			ModifiedAt: now,
		}
	}

	t.Run("create and get", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := InvoiceRepo{DB: tx}
			inv := newInvoice(t, tx, "2025-0001")

			created, err := repo.CreateInvoice(t.Context(), inv)
			require.NoError(t, err)
			require.NotEqual(t, uuid.Nil, created.ID)
			require.Len(t, created.Items, 2)
			require.Equal(t, 1, created.Items[0].Position)
			require.Equal(t, 2, created.Items[1].Position)

			got, err := repo.GetInvoice(t.Context(), created.ID)
			require.NoError(t, err)
			assert.Equal(t, "2025-0001", got.Number)
			assert.Equal(t, invoicestatus.Draft, got.Status)
			assert.True(t, got.Total.Equal(dec("968.00")), "total got %s", got.Total)
			assert.True(t, got.TaxRate.Equal(dec("21")))
			assert.Equal(t, "2025-03-14", got.OperationDate.Format(time.DateOnly))
			require.Len(t, got.Items, 2)
			assert.Equal(t, "Consulta", got.Items[0].Description)
			assert.True(t, got.Items[1].Quantity.Equal(dec("2")))
			assert.True(t, got.Items[1].LineTotal.Equal(dec("363")))
		})
	})

	t.Run("number is unique", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := InvoiceRepo{DB: tx}
			inv := newInvoice(t, tx, "2025-0002")
			_, err := repo.CreateInvoice(t.Context(), inv)
			require.NoError(t, err)

			inv.ID = uuid.Nil
			_, err = repo.CreateInvoice(t.Context(), inv)

			require.ErrorIs(t, err, apperrors.ErrInvoiceNumberTaken)
		})
	})

	t.Run("get not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := InvoiceRepo{DB: tx}

			_, err := repo.GetInvoice(t.Context(), uuid.New())

			require.ErrorIs(t, err, apperrors.ErrInvoiceNotFound)
		})
	})

	t.Run("legacy status reads as unknown", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := InvoiceRepo{DB: tx}
			created, err := repo.CreateInvoice(t.Context(), newInvoice(t, tx, "2025-0003"))
			require.NoError(t, err)
			_, err = tx.Exec(t.Context(), "UPDATE invoices SET status = 'paid' WHERE id = $1", created.ID)
			require.NoError(t, err)

			got, err := repo.GetInvoice(t.Context(), created.ID)

			require.NoError(t, err, "unexpected status must not break reading")
			require.Equal(t, invoicestatus.Unknown, got.Status)
		})
	})

	t.Run("update status is compare and set", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := InvoiceRepo{DB: tx}
			created, err := repo.CreateInvoice(t.Context(), newInvoice(t, tx, "2025-0004"))
			require.NoError(t, err)
			at := time.Now().Add(time.Minute)

			err = repo.UpdateStatus(t.Context(), created.ID, invoicestatus.Draft, invoicestatus.Issued, at)
			require.NoError(t, err)

			err = repo.UpdateStatus(t.Context(), created.ID, invoicestatus.Draft, invoicestatus.Issued, at)
			require.ErrorIs(t, err, apperrors.ErrInvoiceStatusConflict, "status is not draft anymore")

			err = repo.UpdateStatus(t.Context(), uuid.New(), invoicestatus.Draft, invoicestatus.Issued, at)
			require.ErrorIs(t, err, apperrors.ErrInvoiceNotFound)

			got, err := repo.GetInvoice(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, invoicestatus.Issued, got.Status)
			require.WithinDuration(t, at, got.ModifiedAt, time.Millisecond)
		})
	})

	t.Run("update content", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := InvoiceRepo{DB: tx}
			created, err := repo.CreateInvoice(t.Context(), newInvoice(t, tx, "2025-0005"))
			require.NoError(t, err)
			editable := []invoicestatus.Status{invoicestatus.Draft, invoicestatus.Issued}

			created.Notes = "Provisión de fondos"
			created.TaxBase = dec("100.00")
			created.Total = dec("121.00")
			created.Items = []models.InvoiceItem{
				{Description: "Nuevo concepto", Quantity: dec("1"), UnitPrice: dec("100"), LineTotal: dec("121.00")},
			}

			updated, err := repo.UpdateContent(t.Context(), created, editable)
			require.NoError(t, err)
			assert.Equal(t, "Provisión de fondos", updated.Notes)
			require.Len(t, updated.Items, 1)

			got, err := repo.GetInvoice(t.Context(), created.ID)
			require.NoError(t, err)
			require.Len(t, got.Items, 1, "old items must be replaced")
			assert.Equal(t, "Nuevo concepto", got.Items[0].Description)
			assert.True(t, got.Total.Equal(dec("121")))

			// Lock invoice
			require.NoError(t, repo.UpdateStatus(t.Context(), created.ID, invoicestatus.Draft, invoicestatus.Issued, time.Now()))
			require.NoError(t, repo.UpdateStatus(t.Context(), created.ID, invoicestatus.Issued, invoicestatus.Sent, time.Now()))

			_, err = repo.UpdateContent(t.Context(), created, editable)
			require.ErrorIs(t, err, apperrors.ErrInvoiceStatusConflict)

			got, err = repo.GetInvoice(t.Context(), created.ID)
			require.NoError(t, err)
			require.Len(t, got.Items, 1, "items of locked invoice stay untouched")
		})
	})

	t.Run("list with filters", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := InvoiceRepo{DB: tx}
			first, err := repo.CreateInvoice(t.Context(), newInvoice(t, tx, "2025-0006"))
			require.NoError(t, err)
			second, err := repo.CreateInvoice(t.Context(), newInvoice(t, tx, "2025-0007"))
			require.NoError(t, err)
			require.NoError(t, repo.UpdateStatus(t.Context(), second.ID, invoicestatus.Draft, invoicestatus.Cancelled, time.Now()))

			all, err := repo.ListInvoices(t.Context(), repository.ListInvoicesOpts{Limit: 10})
			require.NoError(t, err)
			require.Len(t, all, 2)
			require.Len(t, all[0].Items, 2, "items must be loaded for listed invoices")

			byRecipient, err := repo.ListInvoices(t.Context(), repository.ListInvoicesOpts{RecipientID: &first.RecipientID, Limit: 10})
			require.NoError(t, err)
			require.Len(t, byRecipient, 1)
			require.Equal(t, first.ID, byRecipient[0].ID)

			cancelled, err := repo.ListInvoices(t.Context(), repository.ListInvoicesOpts{
				Statuses: []invoicestatus.Status{invoicestatus.Cancelled},
				Limit:    10,
			})
			require.NoError(t, err)
			require.Len(t, cancelled, 1)
			require.Equal(t, second.ID, cancelled[0].ID)

			paged, err := repo.ListInvoices(t.Context(), repository.ListInvoicesOpts{Limit: 10, Offset: 2})
			require.NoError(t, err)
			require.Empty(t, paged)
		})
	})

	t.Run("status history", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			repo := InvoiceRepo{DB: tx}
			created, err := repo.CreateInvoice(t.Context(), newInvoice(t, tx, "2025-0008"))
			require.NoError(t, err)

			for _, c := range []models.InvoiceStatusChange{
				{From: invoicestatus.Unknown, To: invoicestatus.Draft},
				{From: invoicestatus.Draft, To: invoicestatus.Cancelled, Reason: "duplicada"},
			} {
				c.InvoiceID, c.ActorID, c.ChangedAt = created.ID, created.IssuerID, time.Now()
				require.NoError(t, repo.AddStatusChange(t.Context(), c))
			}

			history, err := repo.ListStatusChanges(t.Context(), created.ID)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, invoicestatus.Unknown, history[0].From)
			assert.Equal(t, invoicestatus.Draft, history[0].To)
			assert.Equal(t, invoicestatus.Cancelled, history[1].To)
			assert.Equal(t, "duplicada", history[1].Reason)
			assert.Less(t, history[0].ID, history[1].ID)
		})
	})
}
