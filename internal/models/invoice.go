// Package models defines the domain types for voice invoicing.
package models

import "time"

// InvoiceStatus is the lifecycle state of a finalized invoice.
type InvoiceStatus string

const InvoiceStatusSent InvoiceStatus = "sent"

// LineItem is one billable row. Amount is always Quantity * Rate.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	Amount      float64 `json:"amount"`
}

// Draft is the in-progress invoice assembled over a conversation.
// It is never persisted; totals are recomputed on every mutation.
type Draft struct {
	ClientID  string     `json:"client_id,omitempty"`
	LineItems []LineItem `json:"line_items"`
	Notes     string     `json:"notes,omitempty"`
	TaxRate   float64    `json:"tax_rate"`
	Subtotal  float64    `json:"subtotal"`
	TaxAmount float64    `json:"tax_amount"`
	Total     float64    `json:"total"`
}

// Clone returns a deep copy so callers can mutate without aliasing the
// line item slice of a stored draft.
func (d *Draft) Clone() *Draft {
	if d == nil {
		return nil
	}
	out := *d
	out.LineItems = append([]LineItem(nil), d.LineItems...)
	return &out
}

// Invoice is a finalized, numbered invoice. ID is assigned by the store
// and stays empty when persistence failed after delivery.
type Invoice struct {
	ID               string        `json:"id"`
	InvoiceNumber    string        `json:"invoice_number"`
	ClientID         string        `json:"client_id"`
	Status           InvoiceStatus `json:"status"`
	LineItems        []LineItem    `json:"line_items"`
	Subtotal         float64       `json:"subtotal"`
	TaxRate          float64       `json:"tax_rate"`
	TaxAmount        float64       `json:"tax_amount"`
	Total            float64       `json:"total"`
	Notes            string        `json:"notes,omitempty"`
	DocumentChecksum string        `json:"document_checksum,omitempty"`
	SentAt           time.Time     `json:"sent_at"`
	CreatedAt        time.Time     `json:"created_at"`
}
