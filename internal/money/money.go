// Package money holds the invoice arithmetic. All functions are pure;
// values are never rounded here, only when formatted for presentation.
package money

import (
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/starford/voiceinvoice/internal/models"
)

// Totals is the derived money block of a draft or invoice.
type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	TaxAmount float64 `json:"tax_amount"`
	Total     float64 `json:"total"`
}

// LineAmount returns quantity * rate.
func LineAmount(quantity, rate float64) float64 {
	return quantity * rate
}

// ComputeTotals sums the item amounts and applies taxRate to the subtotal.
func ComputeTotals(items []models.LineItem, taxRate float64) Totals {
	subtotal := lo.SumBy(items, func(it models.LineItem) float64 { return it.Amount })
	tax := subtotal * taxRate
	return Totals{
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal + tax,
	}
}

// Reprice returns a copy of items with every Amount recomputed from its
// quantity and rate.
func Reprice(items []models.LineItem) []models.LineItem {
	return lo.Map(items, func(it models.LineItem, _ int) models.LineItem {
		it.Amount = LineAmount(it.Quantity, it.Rate)
		return it
	})
}

// Recompute reprices the draft's items and refreshes its totals in place.
func Recompute(d *models.Draft) {
	d.LineItems = Reprice(d.LineItems)
	t := ComputeTotals(d.LineItems, d.TaxRate)
	d.Subtotal, d.TaxAmount, d.Total = t.Subtotal, t.TaxAmount, t.Total
}

// Format renders v rounded to the minor unit, prefixed with symbol.
func Format(symbol string, v float64) string {
	return symbol + decimal.NewFromFloat(v).StringFixed(2)
}

// FormatPercent renders a rate in [0,1] as a percentage with one decimal.
func FormatPercent(rate float64) string {
	return decimal.NewFromFloat(rate).Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}
