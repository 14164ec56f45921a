package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/lodestone-ai/lodestone/internal/prompt"
	"github.com/lodestone-ai/lodestone/internal/rag"
	"github.com/lodestone-ai/lodestone/internal/stream"
)

// maxChatBodySize caps the request body. Questions plus a bounded history
// window fit comfortably within 1 MiB.
const maxChatBodySize = 1 << 20

// chatHandler serves the question-answering endpoint.
type chatHandler struct {
	engine *rag.Engine
	logger *slog.Logger
}

// chatRequest is the POST /api/chat body.
type chatRequest struct {
	Message string        `json:"message"`
	History []prompt.Turn `json:"history"`
	Stream  *bool         `json:"stream"` // default true
}

// chatResponse is the non-streaming response body.
type chatResponse struct {
	Success  bool         `json:"success"`
	Response string       `json:"response"`
	Sources  []rag.Source `json:"sources"`
}

// chat handles POST /api/chat, streaming by default.
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBodySize)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}
	if req.Message == "" {
		WriteError(w, http.StatusBadRequest, "invalid_message", "message is required", h.logger)
		return
	}

	if req.Stream == nil || *req.Stream {
		h.streamChat(w, r, req)
		return
	}

	answer, err := h.engine.Answer(r.Context(), req.Message, req.History)
	if err != nil {
		h.logger.Error("answering question", "error", err)
		WriteError(w, http.StatusInternalServerError, "generation_failed", "failed to generate response", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, chatResponse{
		Success:  true,
		Response: answer.Response,
		Sources:  answer.Sources,
	})
}

// streamChat delivers the response as Server-Sent Events. Each token is one
// data frame; the stream ends with [DONE] on success or an error frame on
// failure.
func (h *chatHandler) streamChat(w http.ResponseWriter, r *http.Request, req chatRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := &sseSink{w: w, rc: http.NewResponseController(w)}
	if err := h.engine.Stream(r.Context(), req.Message, req.History, sink); err != nil {
		// The terminal error event already reached the client unless the
		// client itself went away.
		h.logger.Debug("chat stream ended with error", "error", err)
	}
}

// sseSink writes stream events as SSE data frames, flushing after each so
// tokens reach the client as they are generated.
type sseSink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

type contentFrame struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}

type errorFrame struct {
	Error string `json:"error"`
}

func (s *sseSink) Send(ev stream.Event) error {
	var payload []byte
	switch ev.Type {
	case stream.TypeContent:
		data, err := json.Marshal(contentFrame{Token: ev.Token, Type: stream.TypeContent})
		if err != nil {
			return fmt.Errorf("encoding content frame: %w", err)
		}
		payload = data

	case stream.TypeDone:
		payload = []byte("[DONE]")

	case stream.TypeError:
		data, err := json.Marshal(errorFrame{Error: ev.Err})
		if err != nil {
			return fmt.Errorf("encoding error frame: %w", err)
		}
		payload = data

	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flushing event: %w", err)
	}
	return nil
}
