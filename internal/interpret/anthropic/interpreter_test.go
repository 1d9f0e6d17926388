package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/interpret"
	"github.com/starford/voiceinvoice/internal/models"
)

func TestInterpret_ReturnsTextBlocks(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"{\"line_items\":"},{"type":"text","text":"[]}"}]}`))
	}))
	defer srv.Close()

	in, err := New(Config{APIKey: "test-key", BaseURL: srv.URL, BusinessName: "Miller Painting"})
	require.NoError(t, err)

	out, err := in.Interpret(context.Background(), interpret.Request{
		Transcript: "3 days labor at 400 a day for Jane",
		Clients:    []models.Client{{ID: "c-1", Name: "Jane"}},
	})
	require.NoError(t, err)

	assert.Equal(t, `{"line_items":[]}`, string(out))
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	assert.Contains(t, got.System, "Miller Painting")
	require.Len(t, got.Messages, 1)
	assert.Contains(t, got.Messages[0].Content, `"3 days labor at 400 a day for Jane"`)
	assert.Contains(t, got.Messages[0].Content, "null")
}

func TestInterpret_APIErrorIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	in, err := New(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = in.Interpret(context.Background(), interpret.Request{Transcript: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUpstream))
	assert.Contains(t, err.Error(), "slow down")
}

func TestInterpret_NonJSONStatusIsUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`<html>bad gateway</html>`))
	}))
	defer srv.Close()

	in, err := New(Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = in.Interpret(context.Background(), interpret.Request{Transcript: "hi"})
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestSystemPrompt_DemandsFullItemList(t *testing.T) {
	p := SystemPrompt("")
	assert.True(t, strings.HasPrefix(p, "You are an invoicing assistant for a small business."))
	assert.Contains(t, p, "COMPLETE list")
	assert.Contains(t, p, `"assistant_message": string`)
}
