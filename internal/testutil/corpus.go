package testutil

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// SeedChunkOpts controls the provenance written by SeedChunk. Zero values
// fall back to generic placeholders.
type SeedChunkOpts struct {
	Filename  string
	Title     string
	Authors   string
	StartPage int
	EndPage   int
}

// SeedChunk inserts a file, an article and one embedded chunk, returning the
// chunk ID. Intended for integration tests that need searchable corpus rows.
func SeedChunk(t *testing.T, pool *pgxpool.Pool, text string, embedding []float32, opts SeedChunkOpts) int64 {
	t.Helper()
	ctx := context.Background()

	if opts.Filename == "" {
		opts.Filename = "seed.pdf"
	}
	if opts.Title == "" {
		opts.Title = "Seed Article"
	}

	var fileID int64
	err := pool.QueryRow(ctx,
		`INSERT INTO files (file_path, filename, file_type)
		 VALUES ('/corpus/' || $1::text, $1, 'pdf')
		 ON CONFLICT (filename) DO UPDATE SET filename = EXCLUDED.filename
		 RETURNING file_id`, opts.Filename).Scan(&fileID)
	if err != nil {
		t.Fatalf("seeding file: %v", err)
	}

	var articleID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO articles (file_id, title, authors, start_page, end_page)
		 VALUES ($1, $2, $3, $4, $5) RETURNING article_id`,
		fileID, opts.Title, opts.Authors, opts.StartPage, opts.EndPage).Scan(&articleID)
	if err != nil {
		t.Fatalf("seeding article: %v", err)
	}

	var chunkID int64
	err = pool.QueryRow(ctx,
		`INSERT INTO chunks (article_id, text, embedding) VALUES ($1, $2, $3)
		 RETURNING chunk_id`,
		articleID, text, pgvector.NewVector(embedding)).Scan(&chunkID)
	if err != nil {
		t.Fatalf("seeding chunk: %v", err)
	}

	return chunkID
}
