// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes voice invoicing tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/commit"
	"github.com/starford/voiceinvoice/internal/draft"
	"github.com/starford/voiceinvoice/internal/interpret/anthropic"
	"github.com/starford/voiceinvoice/internal/invoicing"
	"github.com/starford/voiceinvoice/internal/models"
	"github.com/starford/voiceinvoice/internal/store"
)

const (
	schemaURI   = "voiceinvoice://interpretation-schema"
	workflowURI = "voiceinvoice://workflow"
)

// Server wraps the MCP server with voice invoicing tools.
type Server struct {
	mcp *server.MCPServer
	svc *invoicing.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *invoicing.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Voice Invoice",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_clients",
		mcp.WithDescription("List the client directory ordered by name."),
	), s.listClients)

	s.mcp.AddTool(mcp.NewTool("add_client",
		mcp.WithDescription("Add a client to the directory. Emails must be unique."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Client or company name")),
		mcp.WithString("email", mcp.Description("Billing email; required before sending an invoice")),
		mcp.WithString("rate_type", mcp.Description("hourly, day or flat"), mcp.Enum("hourly", "day", "flat")),
		mcp.WithNumber("default_rate", mcp.Description("Usual rate for this client")),
	), s.addClient)

	s.mcp.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a conversation that assembles one invoice draft. "+
			"Read the workflow via the get_workflow_guide tool or the "+workflowURI+" resource."),
	), s.startSession)

	s.mcp.AddTool(mcp.NewTool("take_turn",
		mcp.WithDescription("Interpret one transcript against the session's draft and merge the result."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID from start_session")),
		mcp.WithString("transcript", mcp.Required(), mcp.Description("What the user said")),
	), s.takeTurn)

	s.mcp.AddTool(mcp.NewTool("get_draft",
		mcp.WithDescription("Return the session's draft, selected client and whether it is ready to send."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.getDraft)

	s.mcp.AddTool(mcp.NewTool("select_client",
		mcp.WithDescription("Choose the billed client of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
		mcp.WithString("client_id", mcp.Required(), mcp.Description("Client ID from list_clients")),
	), s.selectClient)

	s.mcp.AddTool(mcp.NewTool("send_invoice",
		mcp.WithDescription("Number, render, email and record the session's draft."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID")),
	), s.sendInvoice)

	s.mcp.AddTool(mcp.NewTool("list_invoices",
		mcp.WithDescription("List sent invoices, newest first."),
		mcp.WithString("client_id", mcp.Description("Only invoices of this client")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of invoices (default 20)")),
	), s.listInvoices)

	s.mcp.AddTool(mcp.NewTool("get_workflow_guide",
		mcp.WithDescription("Returns the steps and rules for turning transcripts into a sent invoice."),
	), s.getWorkflowGuide)

	s.mcp.AddResource(
		mcp.NewResource(schemaURI, "Interpretation Schema",
			mcp.WithResourceDescription("JSON shape the interpreter answers with for each transcript."),
			mcp.WithMIMEType("application/json"),
		),
		s.readSchemaResource,
	)
	s.mcp.AddResource(
		mcp.NewResource(workflowURI, "Invoice Workflow",
			mcp.WithResourceDescription("How to drive a conversation from transcript to sent invoice."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readWorkflowResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type draftView struct {
	SessionID         string           `json:"session_id"`
	Draft             *models.Draft    `json:"draft"`
	Client            *models.Client   `json:"client"`
	Ready             bool             `json:"ready"`
	LastInvoiceNumber string           `json:"last_invoice_number,omitempty"`
	Messages          []models.Message `json:"messages,omitempty"`
}

func view(sess draft.Session) draftView {
	return draftView{
		SessionID:         sess.ID,
		Draft:             sess.Draft,
		Client:            sess.Client,
		Ready:             sess.Ready(),
		LastInvoiceNumber: sess.LastInvoiceNumber,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// errorResult turns a service error into a tool error. Commit failures only
// expose their user-facing message.
func errorResult(err error) *mcp.CallToolResult {
	if f, ok := commit.IsFailure(err); ok {
		if !errors.Is(err, apperr.ErrValidation) {
			slog.Error("tool call failed", slog.String("stage", string(f.Stage)), slog.String("error", err.Error()))
		}
		return mcp.NewToolResultError(fmt.Sprintf("%s (stage: %s)", f.UserMessage(), f.Stage))
	}

	switch {
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrAlreadyExists),
		errors.Is(err, apperr.ErrTurnInFlight):
		return mcp.NewToolResultError(err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrUpstream):
		slog.Error("tool call failed", slog.String("error", err.Error()))
		return mcp.NewToolResultError("upstream service unavailable, please try again")
	default:
		slog.Error("tool call failed", slog.String("error", err.Error()))
		return mcp.NewToolResultError("internal error")
	}
}

func (s *Server) listClients(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	clients, err := s.svc.ListClients(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if len(clients) == 0 {
		return mcp.NewToolResultText("no clients yet"), nil
	}
	return jsonResult(clients)
}

func (s *Server) addClient(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	c, err := s.svc.CreateClient(ctx, models.Client{
		Name:        name,
		Email:       req.GetString("email", ""),
		RateType:    models.RateType(req.GetString("rate_type", string(models.RateTypeHourly))),
		DefaultRate: req.GetFloat("default_rate", 0),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(c)
}

func (s *Server) startSession(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.svc.NewSession(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(view(sess))
}

func (s *Server) takeTurn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	transcript, err := req.RequireString("transcript")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Turn(ctx, id, transcript)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(struct {
		Reply string `json:"reply"`
		draftView
	}{Reply: res.Reply, draftView: view(res.Session)})
}

func (s *Server) getDraft(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.svc.Session(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	v := view(sess)
	v.Messages = sess.Messages
	return jsonResult(v)
}

func (s *Server) selectClient(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	clientID, err := req.RequireString("client_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sess, err := s.svc.SelectClient(ctx, id, clientID)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(view(sess))
}

func (s *Server) sendInvoice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.SendDraft(ctx, id)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(map[string]any{
		"invoiceNumber": res.Outcome.InvoiceNumber,
		"persistence":   res.Outcome.Persistence.String(),
		"total":         res.Outcome.Invoice.Total,
		"sent_to":       res.Session.Client.Email,
	})
}

func (s *Server) listInvoices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	items, total, err := s.svc.ListInvoices(ctx, store.InvoiceFilter{
		ClientID: req.GetString("client_id", ""),
		Limit:    limit,
	})
	if err != nil {
		return errorResult(err), nil
	}
	if total == 0 {
		return mcp.NewToolResultText("no invoices found"), nil
	}
	return jsonResult(map[string]any{"invoices": items, "total": total})
}

func (s *Server) getWorkflowGuide(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(WorkflowGuide), nil
}

func (s *Server) readSchemaResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      schemaURI,
			MIMEType: "application/json",
			Text:     anthropic.Schema,
		},
	}, nil
}

func (s *Server) readWorkflowResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      workflowURI,
			MIMEType: "text/markdown",
			Text:     WorkflowGuide,
		},
	}, nil
}
