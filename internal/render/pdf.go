// Package render produces invoice PDFs.
package render

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/money"
)

// Config describes the issuing business.
type Config struct {
	BusinessName   string
	CurrencySymbol string
	Location       *time.Location
}

// PDF renders Letter-size invoices with gofpdf core fonts.
type PDF struct {
	cfg Config
}

// New creates a PDF renderer.
func New(cfg Config) *PDF {
	if cfg.CurrencySymbol == "" {
		cfg.CurrencySymbol = "$"
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &PDF{cfg: cfg}
}

const (
	pageMargin = 15.0
	colDesc    = 95.0
	colQty     = 20.0
	colRate    = 32.5
	colAmount  = 32.5
	lineH      = 7.0
)

// Render lays out inv for client and returns the PDF bytes.
func (p *PDF) Render(ctx context.Context, inv models.Invoice, client models.Client) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "Letter", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.SetTitle("Invoice "+inv.InvoiceNumber, true)
	pdf.SetCreator(p.cfg.BusinessName, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Header.
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, tr(p.cfg.BusinessName), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "INVOICE", "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Invoice #: "+inv.InvoiceNumber, "", 1, "R", false, 0, "")
	pdf.CellFormat(0, 6, "Date: "+p.date(inv).Format("January 2, 2006"), "", 1, "R", false, 0, "")
	pdf.Ln(4)

	// Bill To.
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(0, 6, "Bill To", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 5, tr(client.Name), "", 1, "L", false, 0, "")
	if client.Address != "" {
		pdf.MultiCell(0, 5, tr(client.Address), "", "L", false)
	}
	if client.Email != "" {
		pdf.CellFormat(0, 5, client.Email, "", 1, "L", false, 0, "")
	}
	pdf.Ln(6)

	// Items.
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(colDesc, lineH, "Description", "B", 0, "L", true, 0, "")
	pdf.CellFormat(colQty, lineH, "Qty", "B", 0, "R", true, 0, "")
	pdf.CellFormat(colRate, lineH, "Rate", "B", 0, "R", true, 0, "")
	pdf.CellFormat(colAmount, lineH, "Amount", "B", 1, "R", true, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, it := range inv.LineItems {
		pdf.CellFormat(colDesc, lineH, tr(it.Description), "", 0, "L", false, 0, "")
		pdf.CellFormat(colQty, lineH, formatQty(it.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(colRate, lineH, tr(money.Format(p.cfg.CurrencySymbol, it.Rate)), "", 0, "R", false, 0, "")
		pdf.CellFormat(colAmount, lineH, tr(money.Format(p.cfg.CurrencySymbol, it.Amount)), "", 1, "R", false, 0, "")
	}
	pdf.Ln(3)

	// Totals.
	p.totalRow(pdf, tr, "Subtotal", inv.Subtotal, false)
	if inv.TaxRate > 0 {
		p.totalRow(pdf, tr, "Tax ("+money.FormatPercent(inv.TaxRate)+")", inv.TaxAmount, false)
	}
	p.totalRow(pdf, tr, "Total", inv.Total, true)

	if inv.Notes != "" {
		pdf.Ln(8)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(0, 6, "Notes", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(inv.Notes), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

func (p *PDF) totalRow(pdf *gofpdf.Fpdf, tr func(string) string, label string, v float64, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	pdf.SetFont("Helvetica", style, 10)
	pdf.CellFormat(colDesc+colQty+colRate, lineH, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(colAmount, lineH, tr(money.Format(p.cfg.CurrencySymbol, v)), "", 1, "R", false, 0, "")
}

func (p *PDF) date(inv models.Invoice) time.Time {
	t := inv.SentAt
	if t.IsZero() {
		t = inv.CreatedAt
	}
	if t.IsZero() {
		t = time.Now()
	}
	return t.In(p.cfg.Location)
}

// formatQty drops the fraction for whole quantities.
func formatQty(q float64) string {
	if q == float64(int64(q)) {
		return fmt.Sprintf("%d", int64(q))
	}
	return fmt.Sprintf("%.2f", q)
}
