// Package mail delivers rendered invoices by email through the Resend API.
package mail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/commit"
)

var _ commit.Deliverer = (*Resend)(nil)

const (
	DefaultBaseURL = "https://api.resend.com"
	DefaultTimeout = 30 * time.Second
)

// Config holds the sender settings.
type Config struct {
	APIKey       string
	BaseURL      string
	From         string
	BusinessName string
	Timeout      time.Duration
	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
}

// Resend sends invoices with the PDF attached.
type Resend struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	from     string
	business string
	limiter  *rate.Limiter
}

// New creates a Resend deliverer.
func New(cfg Config) (*Resend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("mail: API key is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("mail: from address is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Resend{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		from:     cfg.From,
		business: cfg.BusinessName,
		limiter:  limiter,
	}, nil
}

type sendRequest struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html"`
	Attachments []attachment `json:"attachments"`
}

type attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

type sendResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Subject is the email subject line for an invoice.
func Subject(number, business string) string {
	return fmt.Sprintf("Invoice %s from %s", number, business)
}

// Deliver emails the document to d.To.
func (r *Resend) Deliver(ctx context.Context, d commit.Delivery) error {
	html, err := Body(BodyData{ClientName: d.ClientName, InvoiceNumber: d.InvoiceNumber, BusinessName: r.business})
	if err != nil {
		return err
	}
	body, err := json.Marshal(sendRequest{
		From:    r.from,
		To:      []string{d.To},
		Subject: Subject(d.InvoiceNumber, r.business),
		HTML:    string(html),
		Attachments: []attachment{{
			Filename: d.InvoiceNumber + ".pdf",
			Content:  base64.StdEncoding.EncodeToString(d.Document),
		}},
	})
	if err != nil {
		return fmt.Errorf("mail: marshal request: %w", err)
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail: throttle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mail: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: mail: send request: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var out sendResponse
	_ = json.Unmarshal(raw, &out)
	if resp.StatusCode/100 != 2 {
		msg := out.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%w: mail: status %d: %s", apperr.ErrUpstream, resp.StatusCode, msg)
	}
	return nil
}

// BodyData fills the email body template.
type BodyData struct {
	ClientName    string
	InvoiceNumber string
	BusinessName  string
}

var bodyTmpl = template.Must(template.New("body").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; color: #222;">
<p>Hi {{if .ClientName}}{{.ClientName}}{{else}}there{{end}},</p>
<p>Please find attached invoice <strong>{{.InvoiceNumber}}</strong> from {{.BusinessName}}.</p>
<p>Thank you for your business!</p>
<p>{{.BusinessName}}</p>
</body>
</html>
`))

// Body renders the HTML email body.
func Body(data BodyData) ([]byte, error) {
	var buf bytes.Buffer
	if err := bodyTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("mail: render body: %w", err)
	}
	return buf.Bytes(), nil
}
