package api

import (
	"errors"
	"io"
	"net/http"
)

// multipartOverhead leaves room for form boundaries and headers.
const multipartOverhead = 1 << 20

// Transcribe handles POST /api/transcribe (multipart/form-data, field "audio").
//
//	@Summary	Convert a voice recording to text
//	@Tags		transcribe
//	@Accept		mpfd
//	@Produce	json
//	@Param		audio	formData	file	true	"Recording"
//	@Success	200		{object}	TranscribeResponse
//	@Failure	400		{object}	errResponse
//	@Failure	413		{object}	errResponse
//	@Failure	422		{object}	errResponse
//	@Failure	502		{object}	errResponse
//	@Router		/transcribe [post]
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioBytes+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("audio file is too large"))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'audio' field in multipart form"))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, h.maxAudioBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read audio"))
		return
	}
	if int64(len(audio)) > h.maxAudioBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody("audio file is too large"))
		return
	}

	text, err := h.svc.Transcribe(r.Context(), audio, header.Filename)
	if err != nil {
		writeError(w, "transcribe", err)
		return
	}
	writeJSON(w, http.StatusOK, TranscribeResponse{Text: text})
}
