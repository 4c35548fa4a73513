package invoice

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"

	"github.com/nkiryanov/bufete/internal/models"
)

// Office that issues invoices, printed in the PDF header
type Issuer struct {
	Name  string
	TaxID string
}

func WithIssuer(issuer Issuer) Option {
	return func(s *Service) {
		s.issuer = issuer
	}
}

// Write invoice as PDF document
// Visible to the same users as Get
func (s *Service) RenderPDF(ctx context.Context, actor models.User, id uuid.UUID, w io.Writer) error {
	inv, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	client, err := s.storage.Client().GetClient(ctx, inv.RecipientID)
	if err != nil {
		return err
	}

	return writePDF(w, s.issuer, inv, client)
}

// Column widths of the items table, mm
var itemColumns = [...]float64{10, 90, 20, 30, 30}

func writePDF(w io.Writer, issuer Issuer, inv models.Invoice, client models.Client) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Factura "+inv.Number, true)
	pdf.SetCreationDate(inv.ModifiedAt)
	pdf.AddPage()

	// Core fonts are cp1252, translate to keep Spanish characters
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr("Factura "+inv.Number), "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, tr("Estado: "+inv.Status.Label()), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, tr("Fecha de operación: "+inv.OperationDate.Format("02/01/2006")), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, tr("Forma de pago: "+paymentLabel(inv.PaymentMethod)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(95, 6, "Emisor", "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 6, "Destinatario", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(95, 5, tr(issuer.Name), "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 5, tr(client.FullName), "", 1, "L", false, 0, "")
	pdf.CellFormat(95, 5, tr("NIF: "+issuer.TaxID), "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 5, tr("NIF: "+client.TaxID), "", 1, "L", false, 0, "")
	pdf.CellFormat(95, 5, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 5, tr(client.Address), "", 1, "L", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, title := range []string{"#", "Concepto", "Cantidad", "Precio", "Importe"} {
		pdf.CellFormat(itemColumns[i], 7, tr(title), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, item := range inv.Items {
		pdf.CellFormat(itemColumns[0], 6, fmt.Sprint(item.Position), "1", 0, "C", false, 0, "")
		pdf.CellFormat(itemColumns[1], 6, tr(item.Description), "1", 0, "L", false, 0, "")
		pdf.CellFormat(itemColumns[2], 6, item.Quantity.String(), "1", 0, "R", false, 0, "")
		pdf.CellFormat(itemColumns[3], 6, item.UnitPrice.StringFixed(moneyPlaces), "1", 0, "R", false, 0, "")
		pdf.CellFormat(itemColumns[4], 6, item.LineTotal.StringFixed(moneyPlaces), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	tax := inv.Total.Sub(inv.TaxBase)
	totals := [][2]string{
		{"Base imponible", inv.TaxBase.StringFixed(moneyPlaces)},
		{"IVA " + inv.TaxRate.String() + "%", tax.StringFixed(moneyPlaces)},
		{"Total", inv.Total.StringFixed(moneyPlaces) + " EUR"},
	}
	for i, row := range totals {
		if i == len(totals)-1 {
			pdf.SetFont("Arial", "B", 11)
		}
		pdf.CellFormat(150, 6, tr(row[0]), "", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, row[1], "", 1, "R", false, 0, "")
	}

	if inv.Notes != "" {
		pdf.Ln(6)
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, tr(inv.Notes), "", "L", false)
	}

	return pdf.Output(w)
}

func paymentLabel(method string) string {
	switch method {
	case models.PaymentTransfer:
		return "Transferencia bancaria"
	case models.PaymentCard:
		return "Tarjeta"
	case models.PaymentCash:
		return "Efectivo"
	case models.PaymentDirect:
		return "Domiciliación bancaria"
	default:
		return method
	}
}
