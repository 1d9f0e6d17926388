package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/voiceinvoice/internal/invoicing"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *invoicing.Service, maxAudioBytes int64, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, maxAudioBytes)

	r := chi.NewRouter()

	// Client directory.
	r.Get("/clients", h.ListClients)
	r.Post("/clients", h.CreateClient)

	// Speech and interpretation.
	r.Post("/transcribe", h.Transcribe)
	r.Post("/interpret", h.Interpret)

	// Conversations.
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Post("/turns", h.Turn)
		r.Put("/client", h.SelectClient)
		r.Post("/send", h.SendDraft)
	})

	// Invoices.
	r.Post("/invoices/send", h.SendInvoice)
	r.Get("/invoices", h.ListInvoices)
	r.Get("/invoices/{number}", h.GetInvoice)
	r.Get("/invoices/{number}/document", h.GetDocument)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
