// Package numbering mints invoice numbers of the form INV-YYYYMMDD-NNN.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/voiceinvoice/internal/apperr"
)

// DefaultAttempts bounds retries after a uniqueness violation.
const DefaultAttempts = 5

// ErrExhausted means every attempt collided with a concurrent mint.
var ErrExhausted = errors.New("numbering: retries exhausted")

// Ledger is the persistent record of reserved numbers. ReserveNumber must
// return apperr.ErrDuplicateNumber when the number already exists.
type Ledger interface {
	CountNumbers(ctx context.Context, prefix string) (int, error)
	ReserveNumber(ctx context.Context, number, day string) error
}

// Authority hands out collision-free invoice numbers.
type Authority struct {
	ledger   Ledger
	attempts int
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures an Authority.
type Option func(*Authority)

// WithAttempts sets the maximum number of mint attempts.
func WithAttempts(n int) Option {
	return func(a *Authority) {
		if n > 0 {
			a.attempts = n
		}
	}
}

// WithLocation sets the time zone that decides the calendar day.
func WithLocation(loc *time.Location) Option {
	return func(a *Authority) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) { a.now = now }
}

// WithLogger sets the logger used for collision diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(a *Authority) { a.logger = l }
}

// New creates an Authority over ledger.
func New(ledger Ledger, opts ...Option) *Authority {
	a := &Authority{
		ledger:   ledger,
		attempts: DefaultAttempts,
		loc:      time.UTC,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prefix returns the per-day number prefix, e.g. "INV-20250614-".
func Prefix(day time.Time) string {
	return "INV-" + day.Format("20060102") + "-"
}

// Format builds the number for the seq-th invoice of day.
func Format(day time.Time, seq int) string {
	return fmt.Sprintf("%s%03d", Prefix(day), seq)
}

// Mint reserves and returns the next number for today. The count is
// re-derived after every collision; a failing count is returned as is
// rather than guessed around.
func (a *Authority) Mint(ctx context.Context) (string, error) {
	today := a.now().In(a.loc)
	prefix := Prefix(today)
	day := today.Format(time.DateOnly)

	for attempt := 1; attempt <= a.attempts; attempt++ {
		count, err := a.ledger.CountNumbers(ctx, prefix)
		if err != nil {
			return "", fmt.Errorf("numbering: count %s: %w", prefix, err)
		}
		number := Format(today, count+1)

		err = a.ledger.ReserveNumber(ctx, number, day)
		if err == nil {
			return number, nil
		}
		if !errors.Is(err, apperr.ErrDuplicateNumber) {
			return "", fmt.Errorf("numbering: reserve %s: %w", number, err)
		}
		a.logger.Warn("numbering: collision, retrying",
			slog.String("invoice_number", number),
			slog.Int("attempt", attempt))
	}
	return "", fmt.Errorf("%w after %d attempts", ErrExhausted, a.attempts)
}
