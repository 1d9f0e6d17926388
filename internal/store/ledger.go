package store

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/voiceinvoice/internal/apperr"
)

// Number ledger statuses.
const (
	NumberReserved = "reserved"
	NumberIssued   = "issued"
	NumberVoid     = "void"
)

// CountNumbers counts every number ever reserved under prefix, including
// void ones, so sequences never move backwards.
func (db *DB) CountNumbers(ctx context.Context, prefix string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoice_numbers WHERE number LIKE ? || '%'`, prefix).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count numbers: %w", err)
	}
	return n, nil
}

// ReserveNumber claims number. A number that already exists yields
// apperr.ErrDuplicateNumber.
func (db *DB) ReserveNumber(ctx context.Context, number, day string) error {
	now := time.Now().UTC()
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO invoice_numbers (number, issued_on, status, reserved_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, number, day, NumberReserved, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("reserve %s: %w", number, apperr.ErrDuplicateNumber)
	}
	if err != nil {
		return fmt.Errorf("store: reserve number: %w", err)
	}
	return nil
}

// VoidNumber marks a reserved number as void. Issued numbers are left alone.
func (db *DB) VoidNumber(ctx context.Context, number, reason string) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE invoice_numbers SET status = ?, reason = ?, updated_at = ?
		WHERE number = ? AND status = ?
	`, NumberVoid, reason, time.Now().UTC(), number, NumberReserved)
	if err != nil {
		return fmt.Errorf("store: void number: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("reserved number %s: %w", number, apperr.ErrNotFound)
	}
	return nil
}

// NumberStatus returns the ledger status of number.
func (db *DB) NumberStatus(ctx context.Context, number string) (status, reason string, err error) {
	err = db.conn.QueryRowContext(ctx,
		`SELECT status, reason FROM invoice_numbers WHERE number = ?`, number).Scan(&status, &reason)
	if err != nil {
		return "", "", fmt.Errorf("store: number status: %w", err)
	}
	return status, reason, nil
}
