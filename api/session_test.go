package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medchat/medchat/internal/conversation"
	"github.com/medchat/medchat/internal/log"
)

// stubSessionStore serves canned sessions and messages.
type stubSessionStore struct {
	session  *conversation.Session
	err      error
	messages []conversation.Message
}

func (s *stubSessionStore) CreateSession(_ context.Context, userID string) (*conversation.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	sess := *s.session
	sess.UserID = userID
	return &sess, nil
}

func (s *stubSessionStore) GetSession(_ context.Context, id uuid.UUID) (*conversation.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.session == nil || s.session.ID != id {
		return nil, conversation.ErrSessionNotFound
	}
	return s.session, nil
}

func (s *stubSessionStore) Messages(_ context.Context, _ uuid.UUID) ([]conversation.Message, error) {
	return s.messages, s.err
}

func sessionMux(store SessionStore) *http.ServeMux {
	mux := http.NewServeMux()
	NewSessionHandler(store, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func TestSessionHandler_Create(t *testing.T) {
	store := &stubSessionStore{session: &conversation.Session{
		ID:        uuid.New(),
		CreatedAt: time.Now(),
	}}
	mux := sessionMux(store)

	w := postJSON(t, mux, "/api/sessions", `{"user_id": "alice"}`)

	require.Equal(t, http.StatusCreated, w.Code)

	var resp SessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, store.session.ID, resp.SessionID)
	assert.Equal(t, "alice", resp.UserID)
	assert.NotEmpty(t, resp.CreatedAt)
}

func TestSessionHandler_Create_BadRequests(t *testing.T) {
	mux := sessionMux(&stubSessionStore{})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{nope`},
		{"missing user_id", `{}`},
		{"blank user_id", `{"user_id": "   "}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, mux, "/api/sessions", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestSessionHandler_Create_StoreError(t *testing.T) {
	mux := sessionMux(&stubSessionStore{err: errors.New("db down")})

	w := postJSON(t, mux, "/api/sessions", `{"user_id": "alice"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSessionHandler_Messages(t *testing.T) {
	sessionID := uuid.New()
	response := "an answer"
	good := true
	store := &stubSessionStore{
		session: &conversation.Session{ID: sessionID, UserID: "alice"},
		messages: []conversation.Message{
			{ID: 1, Query: "first question", Response: &response, IsGood: &good},
			{ID: 2, Query: "second question"},
		},
	}
	mux := sessionMux(store)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+sessionID.String()+"/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Messages []MessageResponse `json:"messages"`
		Total    int               `json:"total"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, int64(1), resp.Messages[0].MessageID)
	require.NotNil(t, resp.Messages[0].Response)
	assert.Equal(t, "an answer", *resp.Messages[0].Response)
	assert.Nil(t, resp.Messages[1].Response)
}

func TestSessionHandler_Messages_NotFound(t *testing.T) {
	mux := sessionMux(&stubSessionStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/"+uuid.NewString()+"/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_Messages_InvalidID(t *testing.T) {
	mux := sessionMux(&stubSessionStore{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/not-a-uuid/messages", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
