package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queryTimeout bounds every single statement issued by the store.
const queryTimeout = 5 * time.Second

// messageCols is the standard SELECT column list for scanMessage.
const messageCols = `message_id, session_id, query, received_at,
	search_query, context_retrieved_at, response, response_at, is_good`

// Store persists sessions, messages and their context chunks in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	db     querier
	logger *slog.Logger
}

// NewStore creates a conversation Store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, db: pool, logger: logger}, nil
}

// newStoreWithDB is the test seam for NewStore. With a nil pool,
// RecordExchange runs without a transaction.
func newStoreWithDB(db querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// CreateSession starts a new conversation for the given user.
func (s *Store) CreateSession(ctx context.Context, userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sess Session
	err := s.db.QueryRow(ctx,
		`INSERT INTO sessions (user_id) VALUES ($1)
		 RETURNING session_id, user_id, created_at`, userID).
		Scan(&sess.ID, &sess.UserID, &sess.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "session_id", sess.ID, "user_id", userID)
	return &sess, nil
}

// GetSession retrieves a session by ID. Returns ErrSessionNotFound if the
// session does not exist.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sess Session
	err := s.db.QueryRow(ctx,
		`SELECT session_id, user_id, created_at FROM sessions WHERE session_id = $1`, id).
		Scan(&sess.ID, &sess.UserID, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %s: %w", id, err)
	}
	return &sess, nil
}

// RecordExchange stores one completed turn: the message row and its context
// chunk references, in a single transaction. Either everything lands or
// nothing does. Returns the generated message ID.
func (s *Store) RecordExchange(ctx context.Context, ex Exchange) (int64, error) {
	if ex.SessionID == uuid.Nil {
		return 0, fmt.Errorf("session ID is required")
	}
	if ex.Query == "" {
		return 0, fmt.Errorf("query is required")
	}
	if ex.ReceivedAt.IsZero() {
		return 0, fmt.Errorf("received_at is required")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	// Nil pool means a unit test injected a fake querier. Skip the
	// transaction and write through it directly.
	if s.pool == nil {
		return s.recordExchange(ctx, s.db, ex)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("transaction rollback failed", "error", err)
		}
	}()

	messageID, err := s.recordExchange(ctx, tx, ex)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing exchange: %w", err)
	}

	s.logger.Debug("recorded exchange",
		"message_id", messageID, "session_id", ex.SessionID, "chunks", len(ex.ChunkIDs))
	return messageID, nil
}

func (s *Store) recordExchange(ctx context.Context, q querier, ex Exchange) (int64, error) {
	var messageID int64
	err := q.QueryRow(ctx,
		`INSERT INTO messages
			(session_id, query, received_at, search_query, context_retrieved_at, response, response_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING message_id`,
		ex.SessionID, ex.Query, ex.ReceivedAt,
		ex.SearchQuery, ex.ContextRetrievedAt, ex.Response, ex.ResponseAt).
		Scan(&messageID)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}

	for _, chunkID := range ex.ChunkIDs {
		if _, err := q.Exec(ctx,
			`INSERT INTO message_context (message_id, chunk_id) VALUES ($1, $2)`,
			messageID, chunkID); err != nil {
			return 0, fmt.Errorf("inserting context chunk %d: %w", chunkID, err)
		}
	}

	return messageID, nil
}

// SetFeedback marks a message as good or bad. Repeated calls overwrite the
// previous value. Returns ErrMessageNotFound if the message does not exist.
func (s *Store) SetFeedback(ctx context.Context, messageID int64, isGood bool) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := s.db.Exec(ctx,
		`UPDATE messages SET is_good = $2 WHERE message_id = $1`, messageID, isGood)
	if err != nil {
		return fmt.Errorf("setting feedback on message %d: %w", messageID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMessageNotFound
	}

	s.logger.Debug("recorded feedback", "message_id", messageID, "is_good", isGood)
	return nil
}

// Messages returns all messages of a session in the order they were asked.
func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx,
		`SELECT `+messageCols+` FROM messages
		 WHERE session_id = $1 ORDER BY message_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing messages for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Query, &m.ReceivedAt,
			&m.SearchQuery, &m.ContextRetrievedAt, &m.Response, &m.ResponseAt,
			&m.IsGood); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading message rows: %w", err)
	}

	return messages, nil
}

// ContextChunkIDs returns the corpus chunks recorded for a message, in
// chunk ID order. Returns ErrMessageNotFound if the message does not exist.
func (s *Store) ContextChunkIDs(ctx context.Context, messageID int64) ([]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE message_id = $1)`, messageID).
		Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("checking message %d: %w", messageID, err)
	}
	if !exists {
		return nil, ErrMessageNotFound
	}

	rows, err := s.db.Query(ctx,
		`SELECT chunk_id FROM message_context WHERE message_id = $1 ORDER BY chunk_id`,
		messageID)
	if err != nil {
		return nil, fmt.Errorf("listing context for message %d: %w", messageID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning context row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading context rows: %w", err)
	}

	return ids, nil
}
