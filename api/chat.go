package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/medchat/medchat/internal/inference"
	"github.com/medchat/medchat/internal/log"
	"github.com/medchat/medchat/internal/rag"
)

// MaxQueryLength bounds the query field of a chat request.
const MaxQueryLength = 10000

// Answerer runs one question through the answer pipeline.
type Answerer interface {
	Answer(ctx context.Context, req rag.Request) (*rag.Response, error)
}

// ChatHandler handles the answer endpoint.
type ChatHandler struct {
	orchestrator Answerer
	logger       log.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(orchestrator Answerer, logger log.Logger) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.chat)
}

// ChatRequest is the request body for the answer endpoint.
type ChatRequest struct {
	Query       string                  `json:"query"`
	ChatHistory []inference.ChatMessage `json:"chat_history"`
	SessionID   uuid.UUID               `json:"session_id"`
}

// chat answers one question. An upstream failure returns 503 naming the
// failed stage. A persistence failure after generation still returns 200,
// with message_id null; the caller gets the answer but no feedback target.
func (h *ChatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "query is required")
		return
	}
	if len(req.Query) > MaxQueryLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "query too long (max 10000 characters)")
		return
	}
	if req.SessionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "session_id is required")
		return
	}

	resp, err := h.orchestrator.Answer(r.Context(), rag.Request{
		Query:       req.Query,
		ChatHistory: req.ChatHistory,
		SessionID:   req.SessionID,
	})
	if err != nil {
		var upstream *rag.UpstreamError
		if errors.As(err, &upstream) {
			h.logger.Error("upstream failure", "stage", upstream.Stage, "error", err)
			writeError(w, http.StatusServiceUnavailable, "upstream_unavailable",
				upstream.Stage+" upstream unavailable")
			return
		}

		var persistence *rag.PersistenceError
		if errors.As(err, &persistence) && resp != nil {
			// The answer survived; only the history row is gone.
			h.logger.Error("exchange not persisted", "error", err)
			writeJSON(w, http.StatusOK, resp)
			return
		}

		h.logger.Error("answer failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to answer")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
