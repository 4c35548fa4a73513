package invoice

import (
	"bytes"
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
	"github.com/nkiryanov/bufete/internal/repository/postgres"
	"github.com/nkiryanov/bufete/internal/testutil"
)

func TestInvoice(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	dec := testutil.Dec
	now := testutil.MustParseTime("2025-03-14 10:00:00Z")

	type fixture struct {
		s       *Service
		storage repository.Storage

		lawyer models.User
		client models.User // login of recipient
		other  models.User // login of unrelated client

		recipient models.Client
	}

	inTx := func(t *testing.T, fn func(f fixture)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			s, err := NewService(storage, nil, WithClock(func() time.Time { return now }), WithIssuer(Issuer{Name: "Bufete Pérez", TaxID: "B12345674"}))
			require.NoError(t, err)

			f := fixture{s: s, storage: storage}

			f.lawyer, err = storage.User().CreateUser(t.Context(), "lawyer", "hash", models.RoleLawyer)
			require.NoError(t, err)

			f.client, err = storage.User().CreateUser(t.Context(), "maria", "hash", models.RoleClient)
			require.NoError(t, err)
			f.recipient, err = storage.Client().CreateClient(t.Context(), models.Client{UserID: &f.client.ID, FullName: "María García", TaxID: "12345678Z", Address: "Calle Mayor 1"})
			require.NoError(t, err)

			f.other, err = storage.User().CreateUser(t.Context(), "pedro", "hash", models.RoleClient)
			require.NoError(t, err)
			_, err = storage.Client().CreateClient(t.Context(), models.Client{UserID: &f.other.ID, FullName: "Pedro Ruiz", TaxID: "87654321X"})
			require.NoError(t, err)

			fn(f)
		})
	}

	params := func(recipientID uuid.UUID) Params {
		return Params{
			RecipientID:   recipientID,
			OperationDate: time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
			PaymentMethod: models.PaymentTransfer,
			TaxRate:       dec("21"),
			Items: []ItemParams{
				{Description: "Consulta inicial", Quantity: dec("1"), UnitPrice: dec("500.00")},
				{Description: "Redacción de escrito", Quantity: dec("1"), UnitPrice: dec("300.00")},
				{Description: "Tasas judiciales", Quantity: dec("1"), UnitPrice: dec("224.52")},
			},
		}
	}

	advance := func(t *testing.T, f fixture, id uuid.UUID, times int) models.Invoice {
		var (
			inv models.Invoice
			err error
		)
		for range times {
			inv, err = f.s.Advance(t.Context(), f.lawyer, id)
			require.NoError(t, err)
		}
		return inv
	}

	t.Run("Create", func(t *testing.T) {
		t.Run("draft with computed totals", func(t *testing.T) {
			inTx(t, func(f fixture) {
				inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))

				require.NoError(t, err)
				require.Equal(t, invoicestatus.Draft, inv.Status)
				require.Truef(t, inv.Total.Equal(dec("1239.67")), "unexpected total %s", inv.Total)
				require.Truef(t, inv.TaxBase.Equal(dec("1024.52")), "unexpected tax base %s", inv.TaxBase)
				require.Len(t, inv.Items, 3)
				require.Equal(t, f.lawyer.ID, inv.IssuerID)
				require.Contains(t, inv.Number, "2025-", "number has to be generated")

				history, err := f.s.History(t.Context(), f.lawyer, inv.ID)
				require.NoError(t, err)
				require.Len(t, history, 1)
				require.Equal(t, invoicestatus.Unknown, history[0].From)
				require.Equal(t, invoicestatus.Draft, history[0].To)
			})
		})

		t.Run("declared total mismatch", func(t *testing.T) {
			inTx(t, func(f fixture) {
				p := params(f.recipient.ID)
				p.Total = dec("1300.00")

				_, err := f.s.Create(t.Context(), f.lawyer, p)
				require.ErrorIs(t, err, apperrors.ErrInvoiceTotalMismatch)
			})
		})

		t.Run("client can't create", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.s.Create(t.Context(), f.client, params(f.recipient.ID))
				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})

		t.Run("unknown recipient", func(t *testing.T) {
			inTx(t, func(f fixture) {
				_, err := f.s.Create(t.Context(), f.lawyer, params(uuid.New()))
				require.ErrorIs(t, err, apperrors.ErrClientNotFound)
			})
		})

		t.Run("number taken", func(t *testing.T) {
			inTx(t, func(f fixture) {
				p := params(f.recipient.ID)
				p.Number = "2025-0001"

				_, err := f.s.Create(t.Context(), f.lawyer, p)
				require.NoError(t, err)
				_, err = f.s.Create(t.Context(), f.lawyer, p)
				require.ErrorIs(t, err, apperrors.ErrInvoiceNumberTaken)
			})
		})

		t.Run("unknown payment method", func(t *testing.T) {
			inTx(t, func(f fixture) {
				p := params(f.recipient.ID)
				p.PaymentMethod = "bitcoin"

				_, err := f.s.Create(t.Context(), f.lawyer, p)
				require.ErrorIs(t, err, apperrors.ErrInvoiceInvalid)
			})
		})
	})

	t.Run("lifecycle", func(t *testing.T) {
		t.Run("draft to sent then cancel", func(t *testing.T) {
			inTx(t, func(f fixture) {
				inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))
				require.NoError(t, err)

				inv = advance(t, f, inv.ID, 2)
				require.Equal(t, invoicestatus.Sent, inv.Status)

				_, err = f.s.Update(t.Context(), f.lawyer, inv.ID, params(f.recipient.ID))
				require.ErrorIs(t, err, apperrors.ErrInvoiceLocked, "sent invoice is not editable")

				cancelled, err := f.s.Cancel(t.Context(), f.lawyer, inv.ID, "error en importe")
				require.NoError(t, err)
				require.Equal(t, invoicestatus.Cancelled, cancelled.Status)

				_, err = f.s.Cancel(t.Context(), f.lawyer, inv.ID, "again")
				require.ErrorIs(t, err, apperrors.ErrInvoiceAlreadyCancelled)

				_, err = f.s.Advance(t.Context(), f.lawyer, inv.ID)
				require.ErrorIs(t, err, apperrors.ErrInvoiceNoSuccessor)

				history, err := f.s.History(t.Context(), f.lawyer, inv.ID)
				require.NoError(t, err)
				require.Len(t, history, 4, "created, issued, sent, cancelled")

				last := history[len(history)-1]
				assert.Equal(t, invoicestatus.Sent, last.From)
				assert.Equal(t, invoicestatus.Cancelled, last.To)
				assert.Equal(t, "error en importe", last.Reason)
				assert.Equal(t, f.lawyer.ID, last.ActorID)
			})
		})

		t.Run("cancel after notified fails", func(t *testing.T) {
			inTx(t, func(f fixture) {
				inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))
				require.NoError(t, err)

				inv = advance(t, f, inv.ID, 3)
				require.Equal(t, invoicestatus.Notified, inv.Status)

				_, err = f.s.Cancel(t.Context(), f.lawyer, inv.ID, "too late")
				require.ErrorIs(t, err, apperrors.ErrInvoiceAlreadyNotified)

				got, err := f.s.Get(t.Context(), f.lawyer, inv.ID)
				require.NoError(t, err)
				require.Equal(t, invoicestatus.Notified, got.Status, "failed cancel must not change status")

				accepted := advance(t, f, inv.ID, 1)
				require.Equal(t, invoicestatus.Accepted, accepted.Status)

				_, err = f.s.Cancel(t.Context(), f.lawyer, inv.ID, "")
				require.ErrorIs(t, err, apperrors.ErrInvoiceAlreadyNotified)
			})
		})

		t.Run("update editable invoice", func(t *testing.T) {
			inTx(t, func(f fixture) {
				inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))
				require.NoError(t, err)
				advance(t, f, inv.ID, 1)

				p := params(f.recipient.ID)
				p.Items = p.Items[:1]
				p.Total = dec("605.00")

				updated, err := f.s.Update(t.Context(), f.lawyer, inv.ID, p)
				require.NoError(t, err)
				require.Equal(t, invoicestatus.Issued, updated.Status, "update keeps status")
				require.Equal(t, inv.Number, updated.Number, "update keeps number")
				require.Len(t, updated.Items, 1)
				require.True(t, updated.Total.Equal(dec("605.00")))
			})
		})

		t.Run("client rejects notified invoice", func(t *testing.T) {
			inTx(t, func(f fixture) {
				inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))
				require.NoError(t, err)

				_, err = f.s.Reject(t.Context(), f.client, inv.ID, "")
				require.ErrorIs(t, err, apperrors.ErrInvoiceNotRejectable, "draft can't be rejected")

				advance(t, f, inv.ID, 3)

				_, err = f.s.Reject(t.Context(), f.other, inv.ID, "not mine")
				require.ErrorIs(t, err, apperrors.ErrInvoiceNotFound, "foreign client must not see invoice")

				rejected, err := f.s.Reject(t.Context(), f.client, inv.ID, "no estoy de acuerdo")
				require.NoError(t, err)
				require.Equal(t, invoicestatus.Rejected, rejected.Status)

				_, err = f.s.Cancel(t.Context(), f.lawyer, inv.ID, "")
				require.ErrorIs(t, err, apperrors.ErrInvoiceAlreadyNotified)
			})
		})

		t.Run("client can't advance or cancel", func(t *testing.T) {
			inTx(t, func(f fixture) {
				inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))
				require.NoError(t, err)

				_, err = f.s.Advance(t.Context(), f.client, inv.ID)
				require.ErrorIs(t, err, apperrors.ErrForbidden)
				_, err = f.s.Cancel(t.Context(), f.client, inv.ID, "")
				require.ErrorIs(t, err, apperrors.ErrForbidden)
			})
		})

		t.Run("unknown status is locked", func(t *testing.T) {
			inTx(t, func(f fixture) {
				inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))
				require.NoError(t, err)

				// Status this release does not know, e.g. written by a newer one
				require.NoError(t, f.storage.Invoice().UpdateStatus(t.Context(), inv.ID, invoicestatus.Draft, invoicestatus.Unknown, now))

				got, err := f.s.Get(t.Context(), f.lawyer, inv.ID)
				require.NoError(t, err)
				require.Equal(t, invoicestatus.Unknown, got.Status)

				_, err = f.s.Update(t.Context(), f.lawyer, inv.ID, params(f.recipient.ID))
				require.ErrorIs(t, err, apperrors.ErrInvoiceLocked)
				_, err = f.s.Advance(t.Context(), f.lawyer, inv.ID)
				require.ErrorIs(t, err, apperrors.ErrInvoiceNoSuccessor)
				_, err = f.s.Cancel(t.Context(), f.lawyer, inv.ID, "")
				require.ErrorIs(t, err, apperrors.ErrInvoiceNotCancellable)
			})
		})
	})

	t.Run("visibility", func(t *testing.T) {
		inTx(t, func(f fixture) {
			inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))
			require.NoError(t, err)

			_, err = f.s.Get(t.Context(), f.client, inv.ID)
			require.NoError(t, err, "recipient sees own invoice")

			_, err = f.s.Get(t.Context(), f.other, inv.ID)
			require.ErrorIs(t, err, apperrors.ErrInvoiceNotFound)

			own, err := f.s.List(t.Context(), f.client, ListParams{})
			require.NoError(t, err)
			require.Len(t, own, 1)

			foreign, err := f.s.List(t.Context(), f.other, ListParams{})
			require.NoError(t, err)
			require.Empty(t, foreign)

			all, err := f.s.List(t.Context(), f.lawyer, ListParams{Statuses: []invoicestatus.Status{invoicestatus.Draft}})
			require.NoError(t, err)
			require.Len(t, all, 1)

			none, err := f.s.List(t.Context(), f.lawyer, ListParams{Statuses: []invoicestatus.Status{invoicestatus.Sent}})
			require.NoError(t, err)
			require.Empty(t, none)

			_, err = f.s.History(t.Context(), f.client, inv.ID)
			require.ErrorIs(t, err, apperrors.ErrForbidden, "history is for staff only")

			_, err = f.s.History(t.Context(), f.other, inv.ID)
			require.ErrorIs(t, err, apperrors.ErrInvoiceNotFound, "invoice of other client looks like missing one")
		})
	})

	t.Run("RenderPDF", func(t *testing.T) {
		inTx(t, func(f fixture) {
			inv, err := f.s.Create(t.Context(), f.lawyer, params(f.recipient.ID))
			require.NoError(t, err)

			var buf bytes.Buffer
			err = f.s.RenderPDF(t.Context(), f.client, inv.ID, &buf)

			require.NoError(t, err)
			require.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")), "output has to be pdf document")

			err = f.s.RenderPDF(t.Context(), f.other, inv.ID, &buf)
			require.ErrorIs(t, err, apperrors.ErrInvoiceNotFound)
		})
	})

	t.Run("new fails without storage", func(t *testing.T) {
		_, err := NewService(nil, nil)
		require.Error(t, err)
	})
}
