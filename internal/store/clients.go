package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/models"
)

const clientColumns = `id, name, email, address, rate_type, default_rate, notes, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(s rowScanner) (models.Client, error) {
	var c models.Client
	var rateType string
	err := s.Scan(&c.ID, &c.Name, &c.Email, &c.Address, &rateType, &c.DefaultRate, &c.Notes, &c.CreatedAt)
	c.RateType = models.RateType(rateType)
	return c, err
}

// ListClients returns every client ordered by name, case-insensitively.
func (db *DB) ListClients(ctx context.Context) ([]models.Client, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+clientColumns+` FROM clients ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list clients: %w", err)
	}
	defer rows.Close()

	out := []models.Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan client: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateClient assigns an ID and creation time and inserts the client.
func (db *DB) CreateClient(ctx context.Context, c models.Client) (models.Client, error) {
	c.ID = uuid.NewString()
	c.CreatedAt = time.Now().UTC()
	if c.RateType == "" {
		c.RateType = models.RateTypeHourly
	}
	c.Email = strings.TrimSpace(c.Email)

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Name, c.Email, c.Address, string(c.RateType), c.DefaultRate, c.Notes, c.CreatedAt)
	if isUniqueViolation(err) {
		return models.Client{}, fmt.Errorf("client %s: %w", c.Email, apperr.ErrAlreadyExists)
	}
	if err != nil {
		return models.Client{}, fmt.Errorf("store: insert client: %w", err)
	}
	return c, nil
}

// GetClient returns the client with id, or apperr.ErrNotFound.
func (db *DB) GetClient(ctx context.Context, id string) (models.Client, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, fmt.Errorf("client %s: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Client{}, fmt.Errorf("store: get client: %w", err)
	}
	return c, nil
}

// FindClientByEmail matches email case-insensitively.
func (db *DB) FindClientByEmail(ctx context.Context, email string) (models.Client, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM clients WHERE email = ? COLLATE NOCASE LIMIT 1`,
		strings.TrimSpace(email))
	c, err := scanClient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Client{}, fmt.Errorf("client %s: %w", email, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Client{}, fmt.Errorf("store: find client: %w", err)
	}
	return c, nil
}
