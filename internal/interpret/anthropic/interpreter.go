// Package anthropic provides an Interpreter backed by the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/interpret"
)

// Ensure Interpreter implements the port.
var _ interpret.Interpreter = (*Interpreter)(nil)

// Default configuration values.
const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-sonnet-4-5"
	DefaultTimeout   = 60 * time.Second
	DefaultMaxTokens = 1024

	anthropicVersion = "2023-06-01"
)

// Config holds configuration for the interpreter.
type Config struct {
	// APIKey is the Anthropic API key (required).
	APIKey string

	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int

	// BusinessName is woven into the system prompt.
	BusinessName string

	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
}

// Interpreter calls the Messages API with the invoicing system prompt.
type Interpreter struct {
	client    *http.Client
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	system    string
	limiter   *rate.Limiter
}

type messagesRequest struct {
	Model     string            `json:"model"`
	Messages  []messagesMessage `json:"messages"`
	MaxTokens int               `json:"max_tokens"`
	System    string            `json:"system,omitempty"`
}

type messagesMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// New creates an Interpreter.
func New(cfg Config) (*Interpreter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Interpreter{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		system:    SystemPrompt(cfg.BusinessName),
		limiter:   limiter,
	}, nil
}

// Interpret sends the transcript with the client list and current draft and
// returns the concatenated text blocks of the reply.
func (s *Interpreter) Interpret(ctx context.Context, req interpret.Request) ([]byte, error) {
	userMsg, err := UserMessage(req)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("anthropic: throttle: %w", err)
	}

	body, err := json.Marshal(messagesRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    s.system,
		Messages:  []messagesMessage{{Role: "user", Content: userMsg}},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", s.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic: send request: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: anthropic: read response: %v", apperr.ErrUpstream, err)
	}

	var msg messagesResponse
	if err := json.Unmarshal(respBody, &msg); err != nil {
		return nil, fmt.Errorf("%w: anthropic: decode response (status %d): %v", apperr.ErrUpstream, resp.StatusCode, err)
	}
	if msg.Error != nil {
		return nil, fmt.Errorf("%w: anthropic: %s", apperr.ErrUpstream, msg.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: anthropic: status %d", apperr.ErrUpstream, resp.StatusCode)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	return []byte(out.String()), nil
}

// UserMessage formats the per-turn prompt.
func UserMessage(req interpret.Request) (string, error) {
	clients, err := json.MarshalIndent(req.Clients, "", "  ")
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal clients: %w", err)
	}
	current, err := json.MarshalIndent(req.CurrentInvoice, "", "  ")
	if err != nil {
		return "", fmt.Errorf("anthropic: marshal current invoice: %w", err)
	}
	return fmt.Sprintf("Voice transcript: %q\n\nAvailable clients:\n%s\n\nCurrent invoice state (null if new):\n%s",
		req.Transcript, clients, current), nil
}
