package api

import (
	"github.com/starford/voiceinvoice/internal/commit"
	"github.com/starford/voiceinvoice/internal/draft"
	"github.com/starford/voiceinvoice/internal/interpret"
	"github.com/starford/voiceinvoice/internal/invoicing"
	"github.com/starford/voiceinvoice/internal/models"
)

// ClientListResponse wraps the client directory.
type ClientListResponse struct {
	Clients []models.Client `json:"clients" validate:"required"`
}

// CreateClientRequest is the request body for adding a client.
type CreateClientRequest struct {
	Name        string          `json:"name" example:"Jane Doe" validate:"required"`
	Email       string          `json:"email" example:"jane@example.com"`
	Address     string          `json:"address,omitempty"`
	RateType    models.RateType `json:"rate_type,omitempty" example:"day"`
	DefaultRate float64         `json:"default_rate,omitempty" example:"400"`
	Notes       string          `json:"notes,omitempty"`
}

// TranscribeResponse carries the recognized text.
type TranscribeResponse struct {
	Text string `json:"text" example:"Three days of labor for Jane" validate:"required"`
}

// InterpretRequest is a stateless interpretation request. Omitted clients
// default to the stored directory.
type InterpretRequest struct {
	Transcript     string          `json:"transcript" validate:"required"`
	Clients        []models.Client `json:"clients,omitempty"`
	CurrentInvoice *models.Draft   `json:"currentInvoice,omitempty"`
}

// InterpretResponse is a normalized interpretation.
type InterpretResponse = interpret.Result

// SessionResponse is the full session state.
type SessionResponse struct {
	draft.Session
	Ready bool `json:"ready"`
}

func sessionResponse(s draft.Session) SessionResponse {
	return SessionResponse{Session: s, Ready: s.Ready()}
}

// TurnRequest is one spoken (or typed) turn.
type TurnRequest struct {
	Transcript string `json:"transcript" example:"Actually make it four days" validate:"required"`
}

// TurnResponse is the state after a turn.
type TurnResponse struct {
	Reply          string           `json:"reply"`
	Session        SessionResponse  `json:"session"`
	Interpretation interpret.Result `json:"interpretation"`
}

func turnResponse(t invoicing.TurnResult) TurnResponse {
	return TurnResponse{Reply: t.Reply, Session: sessionResponse(t.Session), Interpretation: t.Interpretation}
}

// SelectClientRequest picks the billed client of a session.
type SelectClientRequest struct {
	ClientID string `json:"client_id" validate:"required"`
}

// SendInvoiceRequest is a stateless commit request: {invoice, client}.
type SendInvoiceRequest = commit.Request

// SendInvoiceResponse reports a delivered invoice.
type SendInvoiceResponse struct {
	InvoiceNumber string           `json:"invoiceNumber" example:"INV-20250614-001" validate:"required"`
	Persistence   string           `json:"persistence" example:"recorded" enums:"recorded,degraded"`
	Invoice       models.Invoice   `json:"invoice"`
	Session       *SessionResponse `json:"session,omitempty"`
}

func sendResponse(out *commit.Outcome) SendInvoiceResponse {
	return SendInvoiceResponse{
		InvoiceNumber: out.InvoiceNumber,
		Persistence:   out.Persistence.String(),
		Invoice:       out.Invoice,
	}
}

// InvoiceListResponse wraps paginated invoice listings.
type InvoiceListResponse struct {
	Invoices []models.Invoice `json:"invoices" validate:"required"`
	Total    int              `json:"total" example:"42" validate:"required"`
}
