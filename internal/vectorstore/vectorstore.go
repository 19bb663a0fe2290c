// Package vectorstore provides interfaces and implementations for vector similarity search.
package vectorstore

import (
	"context"
)

// Chunk represents a passage with its embedding, ready for indexing
type Chunk struct {
	ID       string
	Text     string
	Vector   []float32
	Metadata map[string]string
}

// SearchResult represents a single nearest neighbor returned by the index.
// Score carries the index's native similarity: cosine similarity, larger
// is better. It is NOT comparable to a cross-encoder rerank score.
type SearchResult struct {
	ID       string
	Text     string
	Score    float32
	Metadata map[string]string
}

// VectorIndex defines the operations against the passage index
type VectorIndex interface {
	// EnsureCollection creates the collection if it does not exist yet
	EnsureCollection(ctx context.Context, dimension int) error

	// Upsert inserts or updates chunks in the index
	Upsert(ctx context.Context, chunks []Chunk) error

	// Query returns the topK nearest passages for the vector, ordered by
	// the index's native similarity ranking. Fewer than topK results are
	// returned when the index holds fewer passages.
	Query(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)

	// Count returns the number of indexed passages
	Count(ctx context.Context) (uint64, error)

	// DeleteBySource removes all chunks ingested from the given source
	DeleteBySource(ctx context.Context, source string) error
}
