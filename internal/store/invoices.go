package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/models"
)

const invoiceColumns = `id, invoice_number, client_id, status, line_items, subtotal, tax_rate,
	tax_amount, total, notes, document_checksum, sent_at, created_at`

// InvoiceFilter narrows ListInvoices. Zero Limit means no limit.
type InvoiceFilter struct {
	ClientID string
	Limit    int
	Offset   int
}

func scanInvoice(s rowScanner) (models.Invoice, error) {
	var inv models.Invoice
	var status, items string
	var sentAt sql.NullTime
	err := s.Scan(&inv.ID, &inv.InvoiceNumber, &inv.ClientID, &status, &items,
		&inv.Subtotal, &inv.TaxRate, &inv.TaxAmount, &inv.Total, &inv.Notes,
		&inv.DocumentChecksum, &sentAt, &inv.CreatedAt)
	if err != nil {
		return inv, err
	}
	inv.Status = models.InvoiceStatus(status)
	if sentAt.Valid {
		inv.SentAt = sentAt.Time
	}
	if err := json.Unmarshal([]byte(items), &inv.LineItems); err != nil {
		return inv, fmt.Errorf("decode line items: %w", err)
	}
	return inv, nil
}

// InsertInvoice records a sent invoice and marks its number issued within
// one transaction. It returns the new row ID.
func (db *DB) InsertInvoice(ctx context.Context, inv models.Invoice) (string, error) {
	items, err := json.Marshal(inv.LineItems)
	if err != nil {
		return "", fmt.Errorf("store: encode line items: %w", err)
	}
	if inv.Status == "" {
		inv.Status = models.InvoiceStatusSent
	}
	id := uuid.NewString()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	_, err = tx.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, inv.InvoiceNumber, inv.ClientID, string(inv.Status), string(items),
		inv.Subtotal, inv.TaxRate, inv.TaxAmount, inv.Total, inv.Notes,
		inv.DocumentChecksum, inv.SentAt, inv.CreatedAt)
	if isUniqueViolation(err) {
		return "", fmt.Errorf("invoice %s: %w", inv.InvoiceNumber, apperr.ErrDuplicateNumber)
	}
	if err != nil {
		return "", fmt.Errorf("store: insert invoice: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE invoice_numbers SET status = ?, reason = '', updated_at = CURRENT_TIMESTAMP
		WHERE number = ?
	`, NumberIssued, inv.InvoiceNumber)
	if err != nil {
		return "", fmt.Errorf("store: mark number issued: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("store: commit: %w", err)
	}
	return id, nil
}

// ListInvoices returns invoices newest first together with the total count
// matching the filter.
func (db *DB) ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int, error) {
	var where []string
	var args []any
	if f.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, f.ClientID)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM invoices`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count invoices: %w", err)
	}

	q := `SELECT ` + invoiceColumns + ` FROM invoices` + clause + ` ORDER BY created_at DESC, invoice_number DESC`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list invoices: %w", err)
	}
	defer rows.Close()

	out := []models.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: scan invoice: %w", err)
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

// GetInvoice returns the invoice with the given number, or apperr.ErrNotFound.
func (db *DB) GetInvoice(ctx context.Context, number string) (models.Invoice, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE invoice_number = ?`, number)
	inv, err := scanInvoice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Invoice{}, fmt.Errorf("invoice %s: %w", number, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Invoice{}, fmt.Errorf("store: get invoice: %w", err)
	}
	return inv, nil
}
