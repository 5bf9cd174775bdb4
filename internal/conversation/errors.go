package conversation

import "errors"

var (
	// ErrSessionNotFound indicates the session ID does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMessageNotFound indicates the message ID does not exist.
	ErrMessageNotFound = errors.New("message not found")
)
