package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/voiceinvoice/internal/apperr"
	"github.com/starford/voiceinvoice/internal/commit"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
	Stage string `json:"stage,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps service errors to status codes. Unexpected errors are
// logged under op and hidden from the caller.
func writeError(w http.ResponseWriter, op string, err error) {
	if f, ok := commit.IsFailure(err); ok {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperr.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperr.ErrUpstream):
			status = http.StatusBadGateway
		}
		if status != http.StatusBadRequest {
			slog.Error(op+" failed", slog.String("stage", string(f.Stage)), slog.String("error", err.Error()))
		}
		writeJSON(w, status, errResponse{Error: f.UserMessage(), Stage: string(f.Stage)})
		return
	}

	switch {
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrAlreadyExists):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrTurnInFlight):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrPayloadTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("audio file is too large"))
	case errors.Is(err, apperr.ErrNoSpeech):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody("no speech detected"))
	case errors.Is(err, apperr.ErrUpstream):
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("upstream service unavailable, please try again"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
