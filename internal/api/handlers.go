package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/voiceinvoice/internal/invoicing"
	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/store"
)

// Handler holds API route handlers.
type Handler struct {
	svc           *invoicing.Service
	maxAudioBytes int64
}

// NewHandler creates a new Handler.
func NewHandler(svc *invoicing.Service, maxAudioBytes int64) *Handler {
	if maxAudioBytes <= 0 {
		maxAudioBytes = 25 << 20
	}
	return &Handler{svc: svc, maxAudioBytes: maxAudioBytes}
}

// ListClients handles GET /api/clients.
//
//	@Summary	List the client directory ordered by name
//	@Tags		clients
//	@Produce	json
//	@Success	200	{object}	ClientListResponse
//	@Router		/clients [get]
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.svc.ListClients(r.Context())
	if err != nil {
		writeError(w, "list clients", err)
		return
	}
	writeJSON(w, http.StatusOK, ClientListResponse{Clients: clients})
}

// CreateClient handles POST /api/clients.
//
//	@Summary	Add a client to the directory
//	@Tags		clients
//	@Accept		json
//	@Produce	json
//	@Param		body	body		CreateClientRequest	true	"Client to create"
//	@Success	201		{object}	models.Client
//	@Failure	400		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Router		/clients [post]
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.svc.CreateClient(r.Context(), models.Client{
		Name:        req.Name,
		Email:       req.Email,
		Address:     req.Address,
		RateType:    req.RateType,
		DefaultRate: req.DefaultRate,
		Notes:       req.Notes,
	})
	if err != nil {
		writeError(w, "create client", err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// Interpret handles POST /api/interpret.
//
//	@Summary	Interpret a transcript against the clients and current draft
//	@Tags		interpret
//	@Accept		json
//	@Produce	json
//	@Param		body	body		InterpretRequest	true	"Transcript and context"
//	@Success	200		{object}	InterpretResponse
//	@Failure	400		{object}	errResponse
//	@Failure	502		{object}	errResponse
//	@Router		/interpret [post]
func (h *Handler) Interpret(w http.ResponseWriter, r *http.Request) {
	var req InterpretRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Interpret(r.Context(), req.Transcript, req.Clients, req.CurrentInvoice)
	if err != nil {
		writeError(w, "interpret", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateSession handles POST /api/sessions.
//
//	@Summary	Start a conversation
//	@Tags		sessions
//	@Produce	json
//	@Success	201	{object}	SessionResponse
//	@Router		/sessions [post]
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.NewSession(r.Context())
	if err != nil {
		writeError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(sess))
}

// GetSession handles GET /api/sessions/{id}.
//
//	@Summary	Get a session with its draft and conversation
//	@Tags		sessions
//	@Produce	json
//	@Param		id	path		string	true	"Session ID"
//	@Success	200	{object}	SessionResponse
//	@Failure	404	{object}	errResponse
//	@Router		/sessions/{id} [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get session", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// Turn handles POST /api/sessions/{id}/turns.
//
//	@Summary	Take one conversational turn
//	@Tags		sessions
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string		true	"Session ID"
//	@Param		body	body		TurnRequest	true	"Transcript"
//	@Success	200		{object}	TurnResponse
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Failure	502		{object}	errResponse
//	@Router		/sessions/{id}/turns [post]
func (h *Handler) Turn(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Turn(r.Context(), chi.URLParam(r, "id"), req.Transcript)
	if err != nil {
		writeError(w, "turn", err)
		return
	}
	writeJSON(w, http.StatusOK, turnResponse(res))
}

// SelectClient handles PUT /api/sessions/{id}/client.
//
//	@Summary	Choose the billed client of a session
//	@Tags		sessions
//	@Accept		json
//	@Produce	json
//	@Param		id		path		string				true	"Session ID"
//	@Param		body	body		SelectClientRequest	true	"Client"
//	@Success	200		{object}	SessionResponse
//	@Failure	404		{object}	errResponse
//	@Router		/sessions/{id}/client [put]
func (h *Handler) SelectClient(w http.ResponseWriter, r *http.Request) {
	var req SelectClientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ClientID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("client_id is required"))
		return
	}
	sess, err := h.svc.SelectClient(r.Context(), chi.URLParam(r, "id"), req.ClientID)
	if err != nil {
		writeError(w, "select client", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(sess))
}

// SendDraft handles POST /api/sessions/{id}/send.
//
//	@Summary	Number, render, email and record the session's draft
//	@Tags		sessions
//	@Produce	json
//	@Param		id	path		string	true	"Session ID"
//	@Success	200	{object}	SendInvoiceResponse
//	@Failure	400	{object}	errResponse
//	@Failure	409	{object}	errResponse
//	@Failure	502	{object}	errResponse
//	@Router		/sessions/{id}/send [post]
func (h *Handler) SendDraft(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.SendDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "send draft", err)
		return
	}
	resp := sendResponse(res.Outcome)
	sess := sessionResponse(res.Session)
	resp.Session = &sess
	writeJSON(w, http.StatusOK, resp)
}

// SendInvoice handles POST /api/invoices/send.
//
//	@Summary	Send a caller-assembled invoice
//	@Tags		invoices
//	@Accept		json
//	@Produce	json
//	@Param		body	body		SendInvoiceRequest	true	"Invoice and client"
//	@Success	200		{object}	SendInvoiceResponse
//	@Failure	400		{object}	errResponse
//	@Failure	502		{object}	errResponse
//	@Router		/invoices/send [post]
func (h *Handler) SendInvoice(w http.ResponseWriter, r *http.Request) {
	var req SendInvoiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out, err := h.svc.SendInvoice(r.Context(), req)
	if err != nil {
		writeError(w, "send invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, sendResponse(out))
}

// ListInvoices handles GET /api/invoices.
//
//	@Summary	List recorded invoices, newest first
//	@Tags		invoices
//	@Produce	json
//	@Param		limit		query		int		false	"Page size"
//	@Param		offset		query		int		false	"Page offset"
//	@Param		client_id	query		string	false	"Filter by client"
//	@Success	200			{object}	InvoiceListResponse
//	@Router		/invoices [get]
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := h.svc.ListInvoices(r.Context(), store.InvoiceFilter{
		ClientID: q.Get("client_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, "list invoices", err)
		return
	}
	writeJSON(w, http.StatusOK, InvoiceListResponse{Invoices: items, Total: total})
}

// GetInvoice handles GET /api/invoices/{number}.
//
//	@Summary	Get a recorded invoice
//	@Tags		invoices
//	@Produce	json
//	@Param		number	path		string	true	"Invoice number"
//	@Success	200		{object}	models.Invoice
//	@Failure	404		{object}	errResponse
//	@Router		/invoices/{number} [get]
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.svc.GetInvoice(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeError(w, "get invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// GetDocument handles GET /api/invoices/{number}/document.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	doc, err := h.svc.Document(r.Context(), number)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="`+number+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}
