package render

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/voiceinvoice/internal/models"
)

func sample() (models.Invoice, models.Client) {
	inv := models.Invoice{
		InvoiceNumber: "INV-20250614-001",
		LineItems: []models.LineItem{
			{Description: "Labor", Quantity: 3, Rate: 400, Amount: 1200},
			{Description: "Café materials", Quantity: 1.5, Rate: 20, Amount: 30},
		},
		Subtotal:  1230,
		TaxRate:   0.08,
		TaxAmount: 98.4,
		Total:     1328.4,
		Notes:     "Thanks for your business",
		SentAt:    time.Date(2025, 6, 14, 15, 0, 0, 0, time.UTC),
	}
	client := models.Client{Name: "Jane Doe", Email: "jane@example.com", Address: "1 Main St\nSpringfield"}
	return inv, client
}

func TestRender_ProducesPDF(t *testing.T) {
	inv, client := sample()
	doc, err := New(Config{BusinessName: "Bright Painting"}).Render(context.Background(), inv, client)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF-")))
	assert.Greater(t, len(doc), 500)
}

func TestRender_WithoutTaxOrNotes(t *testing.T) {
	inv, client := sample()
	inv.TaxRate, inv.TaxAmount, inv.Notes = 0, 0, ""
	inv.Total = inv.Subtotal
	client.Address = ""

	doc, err := New(Config{BusinessName: "Bright Painting", CurrencySymbol: "€"}).Render(context.Background(), inv, client)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF-")))
}

func TestRender_CancelledContext(t *testing.T) {
	inv, client := sample()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(Config{}).Render(ctx, inv, client)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFormatQty(t *testing.T) {
	assert.Equal(t, "3", formatQty(3))
	assert.Equal(t, "1.50", formatQty(1.5))
}
