// Package conversation persists chat sessions and the query/response turns
// within them. Each completed turn is stored as one message row plus the
// set of corpus chunks that grounded the answer, written atomically.
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Session groups the messages of one conversation for one user.
type Session struct {
	ID        uuid.UUID
	UserID    string
	CreatedAt time.Time
}

// Message is one stored query/response turn.
//
// SearchQuery, ContextRetrievedAt, Response and ResponseAt are nil when the
// pipeline did not reach the corresponding step. IsGood is nil until the
// user submits feedback.
type Message struct {
	ID                 int64
	SessionID          uuid.UUID
	Query              string
	ReceivedAt         time.Time
	SearchQuery        *string
	ContextRetrievedAt *time.Time
	Response           *string
	ResponseAt         *time.Time
	IsGood             *bool
}

// Exchange is a completed pipeline turn ready to be persisted. ChunkIDs are
// the corpus chunks used as context, ordered most relevant first.
type Exchange struct {
	SessionID          uuid.UUID
	Query              string
	ReceivedAt         time.Time
	SearchQuery        *string
	ContextRetrievedAt *time.Time
	Response           *string
	ResponseAt         *time.Time
	ChunkIDs           []int64
}
