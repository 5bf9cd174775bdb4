package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medchat/medchat/internal/log"
	"github.com/medchat/medchat/internal/rag"
)

// stubAnswerer returns a canned response/error and records the request.
type stubAnswerer struct {
	resp *rag.Response
	err  error
	got  rag.Request
}

func (s *stubAnswerer) Answer(_ context.Context, req rag.Request) (*rag.Response, error) {
	s.got = req
	return s.resp, s.err
}

func chatMux(answerer Answerer) *http.ServeMux {
	mux := http.NewServeMux()
	NewChatHandler(answerer, log.NewNop()).RegisterRoutes(mux)
	return mux
}

func postJSON(t *testing.T, mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestChatHandler(t *testing.T) {
	id := int64(42)
	stub := &stubAnswerer{resp: &rag.Response{
		Response:  "ACE inhibitors are first-line.",
		MessageID: &id,
		Citations: []rag.Citation{{ChunkID: 7, Text: "chunk", Score: 8.1, Filename: "cardio.pdf"}},
		Grounded:  true,
	}}
	mux := chatMux(stub)
	sessionID := uuid.New()

	body := `{"query": "what treats hypertension?",
		"chat_history": [{"role": "user", "content": "hi"}],
		"session_id": "` + sessionID.String() + `"}`
	w := postJSON(t, mux, "/api/chat", body)

	require.Equal(t, http.StatusOK, w.Code)

	var resp rag.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ACE inhibitors are first-line.", resp.Response)
	require.NotNil(t, resp.MessageID)
	assert.Equal(t, int64(42), *resp.MessageID)
	assert.True(t, resp.Grounded)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "cardio.pdf", resp.Citations[0].Filename)

	assert.Equal(t, "what treats hypertension?", stub.got.Query)
	assert.Equal(t, sessionID, stub.got.SessionID)
	require.Len(t, stub.got.ChatHistory, 1)
}

func TestChatHandler_UpstreamError(t *testing.T) {
	stub := &stubAnswerer{err: &rag.UpstreamError{Stage: rag.StageRerank, Err: errors.New("down")}}
	mux := chatMux(stub)

	w := postJSON(t, mux, "/api/chat",
		`{"query": "q", "session_id": "`+uuid.NewString()+`"}`)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "rerank")
}

func TestChatHandler_PersistenceError(t *testing.T) {
	stub := &stubAnswerer{
		resp: &rag.Response{Response: "the answer", Grounded: true},
		err:  &rag.PersistenceError{Err: errors.New("db down")},
	}
	mux := chatMux(stub)

	w := postJSON(t, mux, "/api/chat",
		`{"query": "q", "session_id": "`+uuid.NewString()+`"}`)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "the answer", resp["response"])
	assert.Nil(t, resp["message_id"])
}

func TestChatHandler_BadRequests(t *testing.T) {
	mux := chatMux(&stubAnswerer{resp: &rag.Response{}})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"empty query", `{"query": "  ", "session_id": "` + uuid.NewString() + `"}`},
		{"missing session", `{"query": "q"}`},
		{"query too long", `{"query": "` + strings.Repeat("x", MaxQueryLength+1) +
			`", "session_id": "` + uuid.NewString() + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, mux, "/api/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestChatHandler_InternalError(t *testing.T) {
	stub := &stubAnswerer{err: errors.New("unexpected")}
	mux := chatMux(stub)

	w := postJSON(t, mux, "/api/chat",
		`{"query": "q", "session_id": "`+uuid.NewString()+`"}`)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
