// Package rag orchestrates the retrieval-augmented answer pipeline: rewrite
// the query, embed it, search the corpus, rerank, generate a grounded answer
// and record the exchange with its citations.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medchat/medchat/internal/conversation"
	"github.com/medchat/medchat/internal/corpus"
	"github.com/medchat/medchat/internal/inference"
)

// Generator produces a chat completion for the given messages.
type Generator interface {
	Generate(ctx context.Context, messages []inference.ChatMessage) (string, error)
}

// Embedder encodes a search query on the query side of the asymmetric
// embedding model.
type Embedder interface {
	EmbedQueryText(ctx context.Context, text string) ([]float32, error)
}

// Reranker scores chunk relevance to a query with a cross-encoder. Scores
// come back in chunk order; higher means more relevant.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []string) ([]float64, error)
}

// Searcher recalls the k nearest corpus chunks to a query vector.
type Searcher interface {
	Search(ctx context.Context, vec []float32, k int) ([]corpus.Hit, error)
}

// ExchangeStore durably records a completed turn.
type ExchangeStore interface {
	RecordExchange(ctx context.Context, ex conversation.Exchange) (int64, error)
}

// Request is one question to answer within a session.
type Request struct {
	Query       string
	ChatHistory []inference.ChatMessage
	SessionID   uuid.UUID
}

// Citation is one context chunk that backed the answer, with its provenance.
type Citation struct {
	ChunkID   int64   `json:"chunk_id"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
	Title     string  `json:"title,omitempty"`
	Authors   string  `json:"authors,omitempty"`
	StartPage int     `json:"start_page,omitempty"`
	EndPage   int     `json:"end_page,omitempty"`
	Filename  string  `json:"filename,omitempty"`
}

// Response is a generated answer. MessageID is nil when the exchange could
// not be persisted. Grounded reports whether any corpus chunk passed the
// relevance threshold and informed the answer.
type Response struct {
	Response  string     `json:"response"`
	MessageID *int64     `json:"message_id"`
	Citations []Citation `json:"citations"`
	Grounded  bool       `json:"grounded"`
}

// Config tunes retrieval and bounds each pipeline stage.
type Config struct {
	TopK               int
	MaxContextChunks   int
	RelevanceThreshold float64

	RewriteTimeout  time.Duration
	EmbedTimeout    time.Duration
	SearchTimeout   time.Duration
	RerankTimeout   time.Duration
	GenerateTimeout time.Duration
}

// Defaults applied by New for zero Config fields.
const (
	DefaultTopK               = 10
	DefaultMaxContextChunks   = 3
	DefaultRelevanceThreshold = 5.0
	defaultStageTimeout       = 30 * time.Second
)

// Orchestrator runs the answer pipeline. It holds no per-request state and is
// safe for concurrent use by multiple goroutines.
type Orchestrator struct {
	generator Generator
	embedder  Embedder
	reranker  Reranker
	searcher  Searcher
	store     ExchangeStore
	cfg       Config
	logger    *slog.Logger
}

// New creates an Orchestrator. All five dependencies are required.
func New(generator Generator, embedder Embedder, reranker Reranker,
	searcher Searcher, store ExchangeStore, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case generator == nil:
		return nil, fmt.Errorf("generator is required")
	case embedder == nil:
		return nil, fmt.Errorf("embedder is required")
	case reranker == nil:
		return nil, fmt.Errorf("reranker is required")
	case searcher == nil:
		return nil, fmt.Errorf("searcher is required")
	case store == nil:
		return nil, fmt.Errorf("store is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxContextChunks <= 0 {
		cfg.MaxContextChunks = DefaultMaxContextChunks
	}
	if cfg.RelevanceThreshold == 0 {
		cfg.RelevanceThreshold = DefaultRelevanceThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator: generator,
		embedder:  embedder,
		reranker:  reranker,
		searcher:  searcher,
		store:     store,
		cfg:       cfg,
		logger:    logger,
	}, nil
}

// Answer runs the full pipeline for one question.
//
// Upstream failures before the answer exists return a *UpstreamError and
// persist nothing. If recording the finished exchange fails, the answer is
// still returned alongside a *PersistenceError, with a nil MessageID.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	if req.SessionID == uuid.Nil {
		return nil, fmt.Errorf("session ID is required")
	}

	receivedAt := time.Now()

	searchQuery, err := o.rewrite(ctx, req)
	if err != nil {
		return nil, &UpstreamError{Stage: StageRewrite, Err: err}
	}
	o.logger.Debug("rewrote query", "session_id", req.SessionID, "search_query", searchQuery)

	vec, err := o.embedQuery(ctx, searchQuery)
	if err != nil {
		return nil, &UpstreamError{Stage: StageEmbed, Err: err}
	}

	hits, err := o.search(ctx, vec)
	if err != nil {
		return nil, &UpstreamError{Stage: StageSearch, Err: err}
	}

	selected, err := o.rerank(ctx, searchQuery, hits)
	if err != nil {
		return nil, &UpstreamError{Stage: StageRerank, Err: err}
	}
	contextRetrievedAt := time.Now()
	o.logger.Debug("selected context",
		"session_id", req.SessionID, "retrieved", len(hits), "kept", len(selected))

	answer, err := o.generate(ctx, searchQuery, selected)
	if err != nil {
		return nil, &UpstreamError{Stage: StageGenerate, Err: err}
	}
	responseAt := time.Now()

	resp := &Response{
		Response:  answer,
		Citations: citations(selected),
		Grounded:  len(selected) > 0,
	}

	chunkIDs := make([]int64, len(selected))
	for i, sc := range selected {
		chunkIDs[i] = sc.hit.Chunk.ID
	}
	messageID, err := o.store.RecordExchange(ctx, conversation.Exchange{
		SessionID:          req.SessionID,
		Query:              req.Query,
		ReceivedAt:         receivedAt,
		SearchQuery:        &searchQuery,
		ContextRetrievedAt: &contextRetrievedAt,
		Response:           &answer,
		ResponseAt:         &responseAt,
		ChunkIDs:           chunkIDs,
	})
	if err != nil {
		// The answer exists but its history row is lost. Surface both.
		o.logger.Error("exchange not persisted, answer returned without message id",
			"session_id", req.SessionID, "error", err)
		return resp, &PersistenceError{Err: err}
	}

	resp.MessageID = &messageID
	o.logger.Info("answered",
		"session_id", req.SessionID, "message_id", messageID,
		"grounded", resp.Grounded, "elapsed", responseAt.Sub(receivedAt))
	return resp, nil
}

func (o *Orchestrator) rewrite(ctx context.Context, req Request) (string, error) {
	ctx, cancel := stageContext(ctx, o.cfg.RewriteTimeout)
	defer cancel()

	raw, err := o.generator.Generate(ctx, rewritePrompt(req.Query, req.ChatHistory))
	if err != nil {
		return "", err
	}
	searchQuery := stripQuestionLabel(raw)
	if searchQuery == "" {
		return "", fmt.Errorf("rewrite produced an empty query")
	}
	return searchQuery, nil
}

func (o *Orchestrator) embedQuery(ctx context.Context, searchQuery string) ([]float32, error) {
	ctx, cancel := stageContext(ctx, o.cfg.EmbedTimeout)
	defer cancel()
	return o.embedder.EmbedQueryText(ctx, searchQuery)
}

func (o *Orchestrator) search(ctx context.Context, vec []float32) ([]corpus.Hit, error) {
	ctx, cancel := stageContext(ctx, o.cfg.SearchTimeout)
	defer cancel()
	return o.searcher.Search(ctx, vec, o.cfg.TopK)
}

// scoredHit pairs a recalled chunk with its cross-encoder score.
type scoredHit struct {
	hit   corpus.Hit
	score float64
}

// rerank scores every recalled chunk against the rewritten query and keeps at
// most MaxContextChunks whose score meets the threshold (inclusive),
// descending by score. Zero survivors is a valid outcome.
func (o *Orchestrator) rerank(ctx context.Context, searchQuery string, hits []corpus.Hit) ([]scoredHit, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ctx, cancel := stageContext(ctx, o.cfg.RerankTimeout)
	defer cancel()

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Chunk.Text
	}
	scores, err := o.reranker.Rerank(ctx, searchQuery, texts)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(hits) {
		return nil, fmt.Errorf("reranker returned %d scores for %d chunks", len(scores), len(hits))
	}

	scored := make([]scoredHit, len(hits))
	for i, h := range hits {
		scored[i] = scoredHit{hit: h, score: scores[i]}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	var selected []scoredHit
	for _, sc := range scored {
		if sc.score < o.cfg.RelevanceThreshold {
			break
		}
		selected = append(selected, sc)
		if len(selected) == o.cfg.MaxContextChunks {
			break
		}
	}
	return selected, nil
}

func (o *Orchestrator) generate(ctx context.Context, searchQuery string, selected []scoredHit) (string, error) {
	ctx, cancel := stageContext(ctx, o.cfg.GenerateTimeout)
	defer cancel()

	texts := make([]string, len(selected))
	for i, sc := range selected {
		texts[i] = sc.hit.Chunk.Text
	}
	return o.generator.Generate(ctx, answerPrompt(searchQuery, strings.Join(texts, "\n\n")))
}

func citations(selected []scoredHit) []Citation {
	out := make([]Citation, len(selected))
	for i, sc := range selected {
		c := sc.hit.Chunk
		out[i] = Citation{
			ChunkID:   c.ID,
			Text:      c.Text,
			Score:     sc.score,
			Title:     c.Title,
			Authors:   c.Authors,
			StartPage: c.StartPage,
			EndPage:   c.EndPage,
			Filename:  c.Filename,
		}
	}
	return out
}

func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultStageTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
