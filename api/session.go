package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medchat/medchat/internal/conversation"
	"github.com/medchat/medchat/internal/log"
)

// MaxUserIDLength bounds the user_id field of session creation.
const MaxUserIDLength = 100

// SessionStore is the subset of the conversation store used by session
// endpoints.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string) (*conversation.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*conversation.Session, error)
	Messages(ctx context.Context, sessionID uuid.UUID) ([]conversation.Message, error)
}

// SessionHandler handles session-related HTTP endpoints.
type SessionHandler struct {
	store  SessionStore
	logger log.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(store SessionStore, logger log.Logger) *SessionHandler {
	return &SessionHandler{store: store, logger: logger}
}

// RegisterRoutes registers session routes on the given mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.create)
	mux.HandleFunc("GET /api/sessions/{id}/messages", h.messages)
}

// CreateSessionRequest is the request body for creating a session.
type CreateSessionRequest struct {
	UserID string `json:"user_id"`
}

// SessionResponse is the wire form of a session.
type SessionResponse struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    string    `json:"user_id"`
	CreatedAt string    `json:"created_at"`
}

// create starts a new conversation session for a user.
func (h *SessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}
	if len(req.UserID) > MaxUserIDLength {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id too long (max 100 characters)")
		return
	}

	sess, err := h.store.CreateSession(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, SessionResponse{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		CreatedAt: sess.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// MessageResponse is the wire form of one stored turn.
type MessageResponse struct {
	MessageID int64   `json:"message_id"`
	Query     string  `json:"query"`
	Response  *string `json:"response"`
	IsGood    *bool   `json:"is_good"`
}

// messages returns the history of one session.
func (h *SessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid session id")
		return
	}

	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		if errors.Is(err, conversation.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.logger.Error("failed to load session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to load session")
		return
	}

	messages, err := h.store.Messages(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("failed to list messages", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to list messages")
		return
	}

	out := make([]MessageResponse, len(messages))
	for i, m := range messages {
		out[i] = MessageResponse{
			MessageID: m.ID,
			Query:     m.Query,
			Response:  m.Response,
			IsGood:    m.IsGood,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"messages":   out,
		"total":      len(out),
	})
}
