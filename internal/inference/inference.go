// Package inference is the boundary to remote model inference: a client for
// the in-house model server's JSON protocol, plus an alternative Gemini
// backend for embedding and generation.
package inference

// Chat roles understood by both backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a chat prompt, in wire format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmbedMode selects which side of the asymmetric embedding model encodes the
// input. Queries and corpus articles are embedded differently; mixing modes
// degrades retrieval.
type EmbedMode string

const (
	EmbedQuery   EmbedMode = "query"
	EmbedArticle EmbedMode = "article"
)
