// Package corpus provides read access to the ingested document corpus:
// approximate nearest-neighbor search over chunk embeddings plus the
// provenance chain (chunk → article → file) used for citations.
//
// The corpus is written exclusively by the ingestion pipeline; this package
// never inserts or mutates files, articles or chunks.
package corpus

// Chunk is a retrieval unit with its denormalized provenance. StartPage,
// EndPage, Title, Authors and Filename come from the owning article and file;
// they are nullable in the schema and empty/zero here when absent.
type Chunk struct {
	ID        int64
	Text      string
	Title     string
	Authors   string
	StartPage int
	EndPage   int
	Filename  string
}

// Hit is a single vector search result. Distance is the L2 distance between
// the query embedding and the chunk embedding; smaller is closer.
type Hit struct {
	Chunk    Chunk
	Distance float64
}
