// Package invoicing is the application service behind the HTTP and MCP
// surfaces: sessions, turns, client directory and commits.
package invoicing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/checksum"
	"github.com/starford/voiceinvoice/internal/commit"
	"github.com/starford/voiceinvoice/internal/directory"
	"github.com/starford/voiceinvoice/internal/draft"
	"github.com/starford/voiceinvoice/internal/interpret"
	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/sse"
	"github.com/starford/voiceinvoice/internal/store"
)

// Store is the persistence the service reads from.
type Store interface {
	ListClients(ctx context.Context) ([]models.Client, error)
	CreateClient(ctx context.Context, c models.Client) (models.Client, error)
	GetClient(ctx context.Context, id string) (models.Client, error)
	FindClientByEmail(ctx context.Context, email string) (models.Client, error)
	ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]models.Invoice, int, error)
	GetInvoice(ctx context.Context, number string) (models.Invoice, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Committer runs the commit protocol.
type Committer interface {
	Commit(ctx context.Context, req commit.Request) (*commit.Outcome, error)
}

// Publisher receives domain events.
type Publisher interface {
	Publish(e sse.Event)
	PublishClientCreated(c models.Client)
}

// Documents returns archived invoice documents.
type Documents interface {
	Load(number string) ([]byte, error)
}

// Deps wires a Service. Transcriber, Events and Documents are optional.
type Deps struct {
	Store       Store
	Interpreter interpret.Interpreter
	Transcriber Transcriber
	Committer   Committer
	Sessions    *draft.Sessions
	Engine      draft.Engine
	Events      Publisher
	Documents   Documents
	Logger      *slog.Logger
}

// Service coordinates sessions, the interpreter and the commit protocol.
type Service struct {
	store       Store
	interpreter interpret.Interpreter
	transcriber Transcriber
	committer   Committer
	sessions    *draft.Sessions
	engine      draft.Engine
	events      Publisher
	documents   Documents
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Service.
func New(d Deps) *Service {
	s := &Service{
		store:       d.Store,
		interpreter: d.Interpreter,
		transcriber: d.Transcriber,
		committer:   d.Committer,
		sessions:    d.Sessions,
		engine:      d.Engine,
		events:      d.Events,
		documents:   d.Documents,
		logger:      d.Logger,
		now:         time.Now,
	}
	if s.sessions == nil {
		s.sessions = draft.NewSessions(0)
	}
	if s.events == nil {
		s.events = nopPublisher{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

type nopPublisher struct{}

func (nopPublisher) Publish(sse.Event)                  {}
func (nopPublisher) PublishClientCreated(models.Client) {}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", apperr.ErrValidation, msg)
}

// ListClients returns the client directory.
func (s *Service) ListClients(ctx context.Context) ([]models.Client, error) {
	return s.store.ListClients(ctx)
}

// CreateClient validates and stores a new client. Emails are unique.
func (s *Service) CreateClient(ctx context.Context, c models.Client) (models.Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	if err := directory.ValidateClient(c); err != nil {
		return models.Client{}, invalid(err.Error())
	}
	if c.Email != "" {
		_, err := s.store.FindClientByEmail(ctx, c.Email)
		if err == nil {
			return models.Client{}, fmt.Errorf("client with email %s: %w", c.Email, apperr.ErrAlreadyExists)
		}
		if !errors.Is(err, apperr.ErrNotFound) {
			return models.Client{}, err
		}
	}
	created, err := s.store.CreateClient(ctx, c)
	if err != nil {
		return models.Client{}, err
	}
	s.logger.Info("client created", slog.String("client_id", created.ID), slog.String("name", created.Name))
	s.events.PublishClientCreated(created)
	return created, nil
}

// Transcribe converts audio to text.
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if s.transcriber == nil {
		return "", fmt.Errorf("%w: transcription is not configured", apperr.ErrUpstream)
	}
	return s.transcriber.Transcribe(ctx, audio, filename)
}

// Interpret runs one stateless interpretation. When clients is nil the
// directory is loaded from the store.
func (s *Service) Interpret(ctx context.Context, transcript string, clients []models.Client, current *models.Draft) (interpret.Result, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return interpret.Result{}, invalid("transcript is required")
	}
	if clients == nil {
		var err error
		if clients, err = s.store.ListClients(ctx); err != nil {
			return interpret.Result{}, err
		}
	}
	raw, err := s.interpreter.Interpret(ctx, interpret.Request{
		Transcript:     transcript,
		Clients:        clients,
		CurrentInvoice: current,
	})
	if err != nil {
		s.logger.Error("interpret failed", slog.String("error", err.Error()))
		return interpret.Result{}, err
	}
	res := interpret.Normalize(raw, clients)
	if res.Kind == interpret.KindDegenerate {
		s.logger.Warn("interpreter returned unusable output", slog.Int("bytes", len(raw)))
	}
	for _, o := range res.Omissions {
		s.logger.Debug("line item dropped", slog.Int("index", o.Index), slog.String("reason", o.Reason))
	}
	return res, nil
}

// NewSession starts a conversation. A directory with exactly one client
// preselects it.
func (s *Service) NewSession(ctx context.Context) (draft.Session, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return draft.Session{}, err
	}
	var selected *models.Client
	if len(clients) == 1 {
		selected = &clients[0]
	}
	sess := s.sessions.Create(selected)
	s.logger.Debug("session started",
		slog.String("session_id", sess.ID),
		slog.Int("live_sessions", s.sessions.Len()))
	return sess, nil
}

// Session returns a snapshot of a session.
func (s *Service) Session(_ context.Context, id string) (draft.Session, error) {
	return s.sessions.Get(id)
}

// TurnResult is the state after one conversational turn.
type TurnResult struct {
	Session        draft.Session    `json:"session"`
	Interpretation interpret.Result `json:"interpretation"`
	Reply          string           `json:"reply"`
}

// Turn interprets transcript against the session's draft and merges the
// result. An interpreter failure leaves the session untouched.
func (s *Service) Turn(ctx context.Context, sessionID, transcript string) (TurnResult, error) {
	clients, err := s.store.ListClients(ctx)
	if err != nil {
		return TurnResult{}, err
	}

	var res interpret.Result
	var reply string
	sess, err := s.sessions.Update(sessionID, func(sess *draft.Session) error {
		var ierr error
		if res, ierr = s.Interpret(ctx, transcript, clients, sess.Draft); ierr != nil {
			return ierr
		}
		out := s.engine.Merge(sess.Draft, sess.Client, res)
		now := s.now()
		sess.Draft = out.Draft
		sess.Client = out.Client
		sess.Say(models.RoleUser, strings.TrimSpace(transcript), now)
		sess.Say(models.RoleAssistant, out.Reply, now)
		reply = out.Reply
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	s.publishDraft(sess)
	return TurnResult{Session: sess, Interpretation: res, Reply: reply}, nil
}

// SelectClient sets the billed client of a session by ID.
func (s *Service) SelectClient(ctx context.Context, sessionID, clientID string) (draft.Session, error) {
	c, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return draft.Session{}, err
	}
	sess, err := s.sessions.Update(sessionID, func(sess *draft.Session) error {
		sess.Client = &c
		if sess.Draft != nil {
			sess.Draft.ClientID = c.ID
		}
		return nil
	})
	if err != nil {
		return draft.Session{}, err
	}
	s.publishDraft(sess)
	return sess, nil
}

// SendResult is the outcome of sending a session draft.
type SendResult struct {
	Outcome *commit.Outcome
	Session draft.Session
}

// SendDraft commits the session's draft. The session is held for the whole
// commit, so turns on it are rejected until it finishes. On success the draft
// is cleared and the selected client kept.
func (s *Service) SendDraft(ctx context.Context, sessionID string) (SendResult, error) {
	var out *commit.Outcome
	sess, err := s.sessions.Update(sessionID, func(sess *draft.Session) error {
		if !sess.Ready() {
			return invalid("invoice needs at least one line item and a client")
		}
		var err error
		out, err = s.committer.Commit(ctx, commit.Request{Invoice: *sess.Draft, Client: *sess.Client})
		if err != nil {
			return err
		}
		sess.Draft = nil
		sess.LastInvoiceNumber = out.InvoiceNumber
		sess.Say(models.RoleAssistant,
			fmt.Sprintf("Invoice %s sent to %s.", out.InvoiceNumber, sess.Client.Email), s.now())
		return nil
	})
	if err != nil {
		return SendResult{}, err
	}
	s.publishSent(sessionID, out)
	s.publishDraft(sess)
	return SendResult{Outcome: out, Session: sess}, nil
}

// SendInvoice commits a caller-assembled invoice without a session.
func (s *Service) SendInvoice(ctx context.Context, req commit.Request) (*commit.Outcome, error) {
	out, err := s.committer.Commit(ctx, req)
	if err != nil {
		return nil, err
	}
	s.publishSent("", out)
	return out, nil
}

// ListInvoices returns recorded invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, f store.InvoiceFilter) ([]models.Invoice, int, error) {
	return s.store.ListInvoices(ctx, f)
}

// GetInvoice returns a recorded invoice by number.
func (s *Service) GetInvoice(ctx context.Context, number string) (models.Invoice, error) {
	return s.store.GetInvoice(ctx, number)
}

// Document returns the archived PDF of an invoice. When the invoice is
// recorded, the document must match its stored checksum.
func (s *Service) Document(ctx context.Context, number string) ([]byte, error) {
	if s.documents == nil {
		return nil, fmt.Errorf("document archive disabled: %w", apperr.ErrNotFound)
	}
	doc, err := s.documents.Load(number)
	if err != nil {
		s.logger.Debug("document load failed", slog.String("invoice_number", number), slog.String("error", err.Error()))
		return nil, fmt.Errorf("document %s: %w", number, apperr.ErrNotFound)
	}
	inv, err := s.store.GetInvoice(ctx, number)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return doc, nil
	case err != nil:
		return nil, err
	case inv.DocumentChecksum != "" && !checksum.Verify(doc, inv.DocumentChecksum):
		s.logger.Error("archived document does not match checksum", slog.String("invoice_number", number))
		return nil, fmt.Errorf("document %s: checksum mismatch", number)
	}
	return doc, nil
}

func (s *Service) publishDraft(sess draft.Session) {
	s.events.Publish(sse.Event{
		Type:    sse.TypeDraftUpdated,
		Session: sess.ID,
		Data: map[string]any{
			"session_id": sess.ID,
			"draft":      sess.Draft,
			"client":     sess.Client,
			"ready":      sess.Ready(),
		},
	})
}

func (s *Service) publishSent(sessionID string, out *commit.Outcome) {
	s.events.Publish(sse.Event{
		Type:    sse.TypeInvoiceSent,
		Session: sessionID,
		Data: map[string]any{
			"invoice_number": out.InvoiceNumber,
			"client_id":      out.Invoice.ClientID,
			"total":          out.Invoice.Total,
			"persistence":    out.Persistence.String(),
		},
	})
}
