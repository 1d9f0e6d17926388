// Package commit turns a ready draft into a numbered, rendered, delivered
// and recorded invoice.
//
// The protocol has two phases. The required phase (validate, recompute,
// mint, render, deliver) aborts cleanly on any failure. The optional phase
// (archive, persist) runs only after delivery; its failures are logged and
// reported through Outcome.Persistence, never as an error, because the
// invoice has already reached the client.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/checksum"
	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/money"
)

// Stage names a step of the required phase.
type Stage string

const (
	StageValidate Stage = "validate"
	StageNumber   Stage = "number"
	StageRender   Stage = "render"
	StageDeliver  Stage = "deliver"
)

// GenericFailureMessage is shown for every non-validation failure.
const GenericFailureMessage = "Failed to send invoice. Please try again."

// Failure is the typed reason a commit aborted. Nothing was delivered or
// recorded as an invoice when a Failure is returned.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("commit: %s: %v", f.Stage, f.Err)
}

// Unwrap exposes the cause plus the category sentinel, so errors.Is works
// with apperr.ErrValidation and apperr.ErrUpstream.
func (f *Failure) Unwrap() []error {
	switch f.Stage {
	case StageValidate:
		return []error{f.Err, apperr.ErrValidation}
	case StageRender, StageDeliver:
		return []error{f.Err, apperr.ErrUpstream}
	default:
		return []error{f.Err}
	}
}

// UserMessage is safe to show to the end user.
func (f *Failure) UserMessage() string {
	if f.Stage == StageValidate {
		return f.Err.Error()
	}
	return GenericFailureMessage
}

// Persistence reports how the optional phase went.
type Persistence int

const (
	// PersistenceRecorded means the invoice row was written.
	PersistenceRecorded Persistence = iota
	// PersistenceDegraded means delivery succeeded but the row was not
	// written; the invoice has no store ID.
	PersistenceDegraded
)

func (p Persistence) String() string {
	if p == PersistenceDegraded {
		return "degraded"
	}
	return "recorded"
}

// Outcome is the result of a successful commit. InvoiceNumber is always set.
type Outcome struct {
	InvoiceNumber string
	Invoice       models.Invoice
	Persistence   Persistence
	// PersistErr holds the swallowed persistence error for diagnostics.
	PersistErr error
}

// Request is a commit request: the draft fields plus the billed client.
// Totals in Invoice are ignored and recomputed.
type Request struct {
	Invoice models.Draft  `json:"invoice"`
	Client  models.Client `json:"client"`
}

// Delivery is a rendered invoice addressed to a client.
type Delivery struct {
	To            string
	ClientName    string
	InvoiceNumber string
	Document      []byte
}

// Minter produces unique invoice numbers.
type Minter interface {
	Mint(ctx context.Context) (string, error)
}

// Renderer produces the deliverable document.
type Renderer interface {
	Render(ctx context.Context, inv models.Invoice, client models.Client) ([]byte, error)
}

// Deliverer sends a rendered document to the client.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Recorder persists invoices and voids numbers of aborted commits.
type Recorder interface {
	InsertInvoice(ctx context.Context, inv models.Invoice) (string, error)
	VoidNumber(ctx context.Context, number, reason string) error
}

// Archiver keeps a copy of delivered documents.
type Archiver interface {
	Save(inv models.Invoice, document []byte) (string, error)
}

// Orchestrator runs the commit protocol.
type Orchestrator struct {
	minter    Minter
	renderer  Renderer
	deliverer Deliverer
	recorder  Recorder
	archiver  Archiver
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithArchiver enables archiving of delivered documents.
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an Orchestrator.
func New(minter Minter, renderer Renderer, deliverer Deliverer, recorder Recorder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		minter:    minter,
		renderer:  renderer,
		deliverer: deliverer,
		recorder:  recorder,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Commit runs the protocol. On failure it returns a *Failure (or the
// context error if ctx was cancelled before minting). Once minting starts
// the commit no longer observes ctx cancellation.
func (o *Orchestrator) Commit(ctx context.Context, req Request) (*Outcome, error) {
	if err := Validate(req); err != nil {
		return nil, &Failure{Stage: StageValidate, Err: err}
	}

	items := money.Reprice(req.Invoice.LineItems)
	totals := money.ComputeTotals(items, req.Invoice.TaxRate)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	number, err := o.minter.Mint(ctx)
	if err != nil {
		o.logger.Error("commit: mint failed", slog.String("error", err.Error()))
		return nil, &Failure{Stage: StageNumber, Err: err}
	}

	now := o.now().UTC()
	inv := models.Invoice{
		InvoiceNumber: number,
		ClientID:      req.Client.ID,
		Status:        models.InvoiceStatusSent,
		LineItems:     items,
		Subtotal:      totals.Subtotal,
		TaxRate:       req.Invoice.TaxRate,
		TaxAmount:     totals.TaxAmount,
		Total:         totals.Total,
		Notes:         req.Invoice.Notes,
		SentAt:        now,
		CreatedAt:     now,
	}
	log := o.logger.With(slog.String("invoice_number", number), slog.String("client_id", req.Client.ID))

	doc, err := o.renderer.Render(ctx, inv, req.Client)
	if err != nil {
		log.Error("commit: render failed", slog.String("error", err.Error()))
		o.void(ctx, log, number, "render failed")
		return nil, &Failure{Stage: StageRender, Err: err}
	}
	inv.DocumentChecksum = checksum.Document(doc)

	err = o.deliverer.Deliver(ctx, Delivery{
		To:            req.Client.Email,
		ClientName:    req.Client.Name,
		InvoiceNumber: number,
		Document:      doc,
	})
	if err != nil {
		log.Error("commit: delivery failed", slog.String("error", err.Error()))
		o.void(ctx, log, number, "delivery failed")
		return nil, &Failure{Stage: StageDeliver, Err: err}
	}
	log.Info("commit: invoice delivered", slog.String("to", req.Client.Email), slog.Float64("total", inv.Total))

	if o.archiver != nil {
		if path, err := o.archiver.Save(inv, doc); err != nil {
			log.Error("commit: archive failed", slog.String("error", err.Error()))
		} else {
			log.Debug("commit: archived", slog.String("path", path))
		}
	}

	out := &Outcome{InvoiceNumber: number, Persistence: PersistenceRecorded}
	id, err := o.recorder.InsertInvoice(ctx, inv)
	if err != nil {
		log.Error("commit: persist failed after delivery", slog.String("error", err.Error()))
		out.Persistence = PersistenceDegraded
		out.PersistErr = err
	} else {
		inv.ID = id
	}
	out.Invoice = inv
	return out, nil
}

func (o *Orchestrator) void(ctx context.Context, log *slog.Logger, number, reason string) {
	if err := o.recorder.VoidNumber(ctx, number, reason); err != nil {
		log.Warn("commit: void number failed", slog.String("error", err.Error()))
	}
}

// Validate checks that a request can be delivered and recorded.
func Validate(req Request) error {
	if err := validation.Validate(req.Client.Email,
		validation.Required.Error("client email is required to send invoice"),
		is.EmailFormat.Error("client email is not a valid address"),
	); err != nil {
		return err
	}
	if err := validation.Validate(req.Invoice.LineItems,
		validation.Required.Error("invoice must have at least one line item"),
	); err != nil {
		return err
	}
	for i := range req.Invoice.LineItems {
		it := &req.Invoice.LineItems[i]
		err := validation.ValidateStruct(it,
			validation.Field(&it.Quantity,
				validation.Required.Error("quantity must be greater than zero"),
				validation.Min(0.0).Exclusive().Error("quantity must be greater than zero")),
			validation.Field(&it.Rate, validation.Min(0.0).Error("rate must not be negative")),
		)
		if err != nil {
			return fmt.Errorf("line item %d: %w", i+1, err)
		}
	}
	return validation.Validate(req.Invoice.TaxRate,
		validation.Min(0.0).Error("tax rate must be between 0 and 1"),
		validation.Max(1.0).Error("tax rate must be between 0 and 1"),
	)
}

// IsFailure reports whether err is a commit Failure and returns it.
func IsFailure(err error) (*Failure, bool) {
	var f *Failure
	ok := errors.As(err, &f)
	return f, ok
}
