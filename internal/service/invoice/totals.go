package invoice

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nkiryanov/bufete/internal/apperrors"
	"github.com/nkiryanov/bufete/internal/models"
)

const moneyPlaces = 2

// Scale of invoice columns; values with more places would be rounded by the database
const (
	quantityPlaces  = 3
	unitPricePlaces = 4
	taxRatePlaces   = 2
)

var (
	hundred = decimal.NewFromInt(100)

	// Declared total may differ from computed one by a cent at most
	totalTolerance = decimal.New(1, -moneyPlaces)
)

type ItemParams struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

type Totals struct {
	Items   []models.InvoiceItem
	TaxBase decimal.Decimal
	Total   decimal.Decimal
}

// Line total includes tax: round(qty × unit × (1 + rate/100), 2)
func LineTotal(quantity, unitPrice, taxRate decimal.Decimal) decimal.Decimal {
	multiplier := decimal.NewFromInt(1).Add(taxRate.Div(hundred))
	return quantity.Mul(unitPrice).Mul(multiplier).Round(moneyPlaces)
}

// Value has no more significant decimal places than allowed (trailing zeros are fine)
func fitsScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Round(places))
}

// Compute line totals, tax base and total
// Non zero declared total must match sum of line totals within tolerance
func ComputeTotals(items []ItemParams, taxRate decimal.Decimal, declared decimal.Decimal) (Totals, error) {
	var totals Totals

	if len(items) == 0 {
		return totals, apperrors.ErrInvoiceNoItems
	}
	if taxRate.IsNegative() || taxRate.GreaterThan(hundred) {
		return totals, fmt.Errorf("%w: tax rate %s out of range", apperrors.ErrInvoiceInvalid, taxRate)
	}
	if !fitsScale(taxRate, taxRatePlaces) {
		return totals, fmt.Errorf("%w: tax rate %s has more than %d decimal places", apperrors.ErrInvoiceInvalid, taxRate, taxRatePlaces)
	}

	base := decimal.Zero
	total := decimal.Zero
	totals.Items = make([]models.InvoiceItem, 0, len(items))

	for i, item := range items {
		if !item.Quantity.IsPositive() {
			return Totals{}, fmt.Errorf("%w: item %d quantity must be positive", apperrors.ErrInvoiceInvalid, i+1)
		}
		if item.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("%w: item %d unit price must not be negative", apperrors.ErrInvoiceInvalid, i+1)
		}
		if !fitsScale(item.Quantity, quantityPlaces) {
			return Totals{}, fmt.Errorf("%w: item %d quantity has more than %d decimal places", apperrors.ErrInvoiceInvalid, i+1, quantityPlaces)
		}
		if !fitsScale(item.UnitPrice, unitPricePlaces) {
			return Totals{}, fmt.Errorf("%w: item %d unit price has more than %d decimal places", apperrors.ErrInvoiceInvalid, i+1, unitPricePlaces)
		}

		line := LineTotal(item.Quantity, item.UnitPrice, taxRate)
		base = base.Add(item.Quantity.Mul(item.UnitPrice))
		total = total.Add(line)

		totals.Items = append(totals.Items, models.InvoiceItem{
			Position:    i + 1,
			Description: item.Description,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   line,
		})
	}

	totals.TaxBase = base.Round(moneyPlaces)
	totals.Total = total

	if !declared.IsZero() && declared.Sub(total).Abs().GreaterThan(totalTolerance) {
		return Totals{}, fmt.Errorf("%w: declared %s, computed %s", apperrors.ErrInvoiceTotalMismatch, declared.StringFixed(moneyPlaces), total.StringFixed(moneyPlaces))
	}

	return totals, nil
}
