// Package apperr defines sentinel errors shared between the service,
// transport, and storage layers.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")

	// ErrDuplicateNumber is returned by the store when an invoice number
	// is already reserved. Numbering treats it as retryable.
	ErrDuplicateNumber = errors.New("invoice number already reserved")

	// ErrUpstream wraps failures of external services (interpreter,
	// transcriber, renderer, mailer).
	ErrUpstream = errors.New("upstream service failed")

	ErrTurnInFlight    = errors.New("another turn is in progress for this session")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrNoSpeech        = errors.New("no speech detected")
)
