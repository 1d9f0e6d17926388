// Package transcribe converts recorded speech to text with the OpenAI
// audio transcription endpoint.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/voiceinvoice/internal/apperr"
)

const (
	DefaultBaseURL  = "https://api.openai.com/v1"
	DefaultModel    = "whisper-1"
	DefaultMaxBytes = 25 << 20
	DefaultTimeout  = 120 * time.Second
)

// Config holds transcriber settings.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	MaxBytes int64
	Timeout  time.Duration
	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
}

// OpenAI is a speech-to-text client.
type OpenAI struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	model    string
	maxBytes int64
	limiter  *rate.Limiter
}

// New creates an OpenAI transcriber.
func New(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("transcribe: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &OpenAI{
		client:   &http.Client{Timeout: cfg.Timeout},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		maxBytes: cfg.MaxBytes,
		limiter:  limiter,
	}, nil
}

// MaxBytes is the largest accepted upload.
func (o *OpenAI) MaxBytes() int64 { return o.maxBytes }

// Transcribe returns the spoken text of audio. Oversized payloads are
// rejected with apperr.ErrPayloadTooLarge before any request is made, and
// silence yields apperr.ErrNoSpeech.
func (o *OpenAI) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if int64(len(audio)) > o.maxBytes {
		return "", fmt.Errorf("audio is %d bytes, limit %d: %w", len(audio), o.maxBytes, apperr.ErrPayloadTooLarge)
	}
	if len(audio) == 0 {
		return "", fmt.Errorf("empty audio: %w", apperr.ErrNoSpeech)
	}
	if filename == "" {
		filename = "recording.webm"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return "", fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("transcribe: write audio: %w", err)
	}
	if err := w.WriteField("model", o.model); err != nil {
		return "", fmt.Errorf("transcribe: write model: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close form: %w", err)
	}

	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("transcribe: throttle: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: transcribe: send request: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: transcribe: read response: %v", apperr.ErrUpstream, err)
	}
	var out struct {
		Text  string `json:"text"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("%w: transcribe: decode response (status %d): %v", apperr.ErrUpstream, resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("%w: transcribe: %s", apperr.ErrUpstream, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: transcribe: status %d", apperr.ErrUpstream, resp.StatusCode)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", apperr.ErrNoSpeech
	}
	return text, nil
}
