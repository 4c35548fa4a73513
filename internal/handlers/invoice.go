package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nkiryanov/bufete/internal/handlers/render"
	"github.com/nkiryanov/bufete/internal/handlers/userctx"
	"github.com/nkiryanov/bufete/internal/invoicestatus"
	"github.com/nkiryanov/bufete/internal/logger"
	"github.com/nkiryanov/bufete/internal/models"
	"github.com/nkiryanov/bufete/internal/service/invoice"
)

const dateLayout = "2006-01-02"

type invoiceItemRequest struct {
	Description string          `json:"description" validate:"required,max=500"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
	UnitPrice   decimal.Decimal `json:"unit_price" validate:"gte=0"`
}

type invoiceRequest struct {
	Number        string               `json:"number" validate:"max=32"`
	RecipientID   uuid.UUID            `json:"recipient_id"`
	OperationDate string               `json:"operation_date" validate:"required,datetime=2006-01-02"`
	PaymentMethod string               `json:"payment_method" validate:"required,oneof=transfer card cash direct_debit"`
	TaxRate       decimal.Decimal      `json:"tax_rate" validate:"gte=0,lte=100"`
	Total         decimal.Decimal      `json:"total" validate:"gte=0"`
	Notes         string               `json:"notes" validate:"max=2000"`
	Items         []invoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (req invoiceRequest) toParams() invoice.Params {
	// Format is checked by validator
	date, _ := time.Parse(dateLayout, req.OperationDate)

	items := make([]invoice.ItemParams, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, invoice.ItemParams{
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	return invoice.Params{
		Number:        req.Number,
		RecipientID:   req.RecipientID,
		OperationDate: date,
		PaymentMethod: req.PaymentMethod,
		TaxRate:       req.TaxRate,
		Total:         req.Total,
		Notes:         req.Notes,
		Items:         items,
	}
}

type invoiceItemResponse struct {
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type invoiceResponse struct {
	ID             uuid.UUID              `json:"id"`
	Number         string                 `json:"number"`
	Status         invoicestatus.Status   `json:"status"`
	StatusLabel    string                 `json:"status_label"`
	StatusCategory invoicestatus.Category `json:"status_category"`
	IssuerID       uuid.UUID              `json:"issuer_id"`
	RecipientID    uuid.UUID              `json:"recipient_id"`
	OperationDate  string                 `json:"operation_date"`
	PaymentMethod  string                 `json:"payment_method"`
	TaxRate        decimal.Decimal        `json:"tax_rate"`
	TaxBase        decimal.Decimal        `json:"tax_base"`
	Total          decimal.Decimal        `json:"total"`
	Notes          string                 `json:"notes,omitempty"`
	Items          []invoiceItemResponse  `json:"items"`
	CreatedAt      time.Time              `json:"created_at"`
	ModifiedAt     time.Time              `json:"modified_at"`
}

func toInvoiceResponse(inv models.Invoice) invoiceResponse {
	items := make([]invoiceItemResponse, 0, len(inv.Items))
	for _, item := range inv.Items {
		items = append(items, invoiceItemResponse(item))
	}

	return invoiceResponse{
		ID:             inv.ID,
		Number:         inv.Number,
		Status:         inv.Status,
		StatusLabel:    inv.Status.Label(),
		StatusCategory: inv.Status.Category(),
		IssuerID:       inv.IssuerID,
		RecipientID:    inv.RecipientID,
		OperationDate:  inv.OperationDate.Format(dateLayout),
		PaymentMethod:  inv.PaymentMethod,
		TaxRate:        inv.TaxRate,
		TaxBase:        inv.TaxBase,
		Total:          inv.Total,
		Notes:          inv.Notes,
		Items:          items,
		CreatedAt:      inv.CreatedAt,
		ModifiedAt:     inv.ModifiedAt,
	}
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func handleCreateInvoice(invoiceService invoiceService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		data, err := render.BindAndValidate[invoiceRequest](w, r)
		if err != nil {
			return
		}

		inv, err := invoiceService.Create(r.Context(), actor, data.toParams())
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSONWithStatus(w, toInvoiceResponse(inv), http.StatusCreated)
	})
}

// Optional filter: ?status=draft,sent
func handleListInvoices(invoiceService invoiceService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		limit, offset, ok := pageFromQuery(w, r)
		if !ok {
			return
		}

		params := invoice.ListParams{Limit: limit, Offset: offset}
		if raw := r.URL.Query().Get("status"); raw != "" {
			for _, name := range strings.Split(raw, ",") {
				st := invoicestatus.Parse(strings.TrimSpace(name))
				if !st.Known() {
					render.ServiceError(w, fmt.Sprintf("Unknown status '%s'", name), http.StatusBadRequest)
					return
				}
				params.Statuses = append(params.Statuses, st)
			}
		}

		invoices, err := invoiceService.List(r.Context(), actor, params)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		res := make([]invoiceResponse, 0, len(invoices))
		for _, inv := range invoices {
			res = append(res, toInvoiceResponse(inv))
		}
		render.JSON(w, res)
	})
}

func handleGetInvoice(invoiceService invoiceService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		id, ok := idFromPath(w, r)
		if !ok {
			return
		}

		inv, err := invoiceService.Get(r.Context(), actor, id)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSON(w, toInvoiceResponse(inv))
	})
}

func handleUpdateInvoice(invoiceService invoiceService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		id, ok := idFromPath(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[invoiceRequest](w, r)
		if err != nil {
			return
		}

		inv, err := invoiceService.Update(r.Context(), actor, id, data.toParams())
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSON(w, toInvoiceResponse(inv))
	})
}

func handleAdvanceInvoice(invoiceService invoiceService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		id, ok := idFromPath(w, r)
		if !ok {
			return
		}

		inv, err := invoiceService.Advance(r.Context(), actor, id)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSON(w, toInvoiceResponse(inv))
	})
}

func handleCancelInvoice(invoiceService invoiceService, l logger.Logger) http.Handler {
	return handleWithReason(invoiceService.Cancel, l)
}

func handleRejectInvoice(invoiceService invoiceService, l logger.Logger) http.Handler {
	return handleWithReason(invoiceService.Reject, l)
}

type reasonedTransition func(ctx context.Context, actor models.User, id uuid.UUID, reason string) (models.Invoice, error)

// Status change with optional json body {"reason": "..."}
func handleWithReason(transition reasonedTransition, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		id, ok := idFromPath(w, r)
		if !ok {
			return
		}

		var data reasonRequest
		if r.ContentLength != 0 {
			var err error
			data, err = render.BindAndValidate[reasonRequest](w, r)
			if err != nil {
				return
			}
		}

		inv, err := transition(r.Context(), actor, id, data.Reason)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		render.JSON(w, toInvoiceResponse(inv))
	})
}

func handleInvoiceHistory(invoiceService invoiceService, l logger.Logger) http.Handler {
	type change struct {
		From      string    `json:"from"`
		To        string    `json:"to"`
		ActorID   uuid.UUID `json:"actor_id"`
		Reason    string    `json:"reason,omitempty"`
		ChangedAt time.Time `json:"changed_at"`
	}

	// Creation record has no previous status
	statusName := func(s invoicestatus.Status) string {
		if !s.Known() {
			return ""
		}
		return s.String()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		id, ok := idFromPath(w, r)
		if !ok {
			return
		}

		changes, err := invoiceService.History(r.Context(), actor, id)
		if err != nil {
			render.AppError(w, err, l)
			return
		}

		res := make([]change, 0, len(changes))
		for _, c := range changes {
			res = append(res, change{
				From:      statusName(c.From),
				To:        statusName(c.To),
				ActorID:   c.ActorID,
				Reason:    c.Reason,
				ChangedAt: c.ChangedAt,
			})
		}
		render.JSON(w, res)
	})
}

func handleInvoicePDF(invoiceService invoiceService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ := userctx.UserFromContext(r.Context())

		id, ok := idFromPath(w, r)
		if !ok {
			return
		}

		// Render to buffer first, so errors still can be sent as json
		var buf bytes.Buffer
		if err := invoiceService.RenderPDF(r.Context(), actor, id, &buf); err != nil {
			render.AppError(w, err, l)
			return
		}

		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"factura-%s.pdf\"", id))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	})
}
