package corpus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorDimension is the embedding width of the chunks schema. Embedders must
// produce vectors of exactly this size.
const VectorDimension = 768

// rows is the subset of pgxpool.Pool used by Store, so tests can substitute
// a fake without a database.
type rows interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// searchSQL recalls the k nearest chunks by L2 distance and joins the
// provenance chain in the same round trip. Chunks without an embedding are
// not yet ingested and never eligible.
const searchSQL = `SELECT c.chunk_id, c.text,
	   c.embedding <-> $1 AS distance,
	   COALESCE(a.title, ''), COALESCE(a.authors, ''),
	   COALESCE(a.start_page, 0), COALESCE(a.end_page, 0),
	   f.filename
	FROM chunks c
	JOIN articles a ON a.article_id = c.article_id
	JOIN files f ON f.file_id = a.file_id
	WHERE c.embedding IS NOT NULL
	ORDER BY c.embedding <-> $1
	LIMIT $2`

// Store performs vector similarity search over the chunk corpus.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     rows
	logger *slog.Logger
}

// NewStore creates a corpus Store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: pool, logger: logger}, nil
}

// newStoreWithDB is the test seam for NewStore.
func newStoreWithDB(db rows, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// Search returns the k nearest chunks to vec, ascending by L2 distance.
// This is a pure recall step: no relevance threshold is applied here.
func (s *Store) Search(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if len(vec) != VectorDimension {
		return nil, fmt.Errorf("query vector has %d dimensions, want %d", len(vec), VectorDimension)
	}
	if k < 1 {
		return nil, fmt.Errorf("k must be >= 1, got %d", k)
	}

	rs, err := s.db.Query(ctx, searchSQL, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rs.Close()

	var hits []Hit
	for rs.Next() {
		var h Hit
		if err := rs.Scan(&h.Chunk.ID, &h.Chunk.Text, &h.Distance,
			&h.Chunk.Title, &h.Chunk.Authors,
			&h.Chunk.StartPage, &h.Chunk.EndPage,
			&h.Chunk.Filename); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("reading chunk rows: %w", err)
	}

	s.logger.Debug("vector search complete", "requested", k, "returned", len(hits))
	return hits, nil
}
