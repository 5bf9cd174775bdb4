package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/medchat/medchat/internal/conversation"
	"github.com/medchat/medchat/internal/log"
)

// FeedbackStore records user feedback on answered messages.
type FeedbackStore interface {
	SetFeedback(ctx context.Context, messageID int64, isGood bool) error
}

// FeedbackHandler handles the feedback endpoint.
type FeedbackHandler struct {
	store  FeedbackStore
	logger log.Logger
}

// NewFeedbackHandler creates a new feedback handler.
func NewFeedbackHandler(store FeedbackStore, logger log.Logger) *FeedbackHandler {
	return &FeedbackHandler{store: store, logger: logger}
}

// RegisterRoutes registers feedback routes on the given mux.
func (h *FeedbackHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/feedback", h.submit)
}

// FeedbackRequest is the request body for submitting feedback. IsGood is a
// pointer so a missing field is distinguishable from an explicit false.
type FeedbackRequest struct {
	MessageID int64 `json:"message_id"`
	IsGood    *bool `json:"is_good"`
}

// submit records feedback on one message. Returns 204 on success and 404
// when the message does not exist.
func (h *FeedbackHandler) submit(w http.ResponseWriter, r *http.Request) {
	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.MessageID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "message_id is required")
		return
	}
	if req.IsGood == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "is_good is required")
		return
	}

	if err := h.store.SetFeedback(r.Context(), req.MessageID, *req.IsGood); err != nil {
		if errors.Is(err, conversation.ErrMessageNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "message not found")
			return
		}
		h.logger.Error("failed to record feedback", "message_id", req.MessageID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "failed to record feedback")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
