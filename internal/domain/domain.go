// Package domain holds the shared data types that flow through the
// retrieval pipeline: retrieved passages and their scores.
package domain

// RetrievedItem is a single passage returned from the vector index,
// optionally annotated with a cross-encoder score after reranking.
//
// RetrievalScore and RerankScore are deliberately separate fields: the
// retrieval score is the index's native cosine similarity (larger is
// better, Qdrant semantics), while the rerank score comes from the
// cross-encoder and lives on an unrelated scale. Keeping both means
// downstream consumers can never conflate the two, and the original
// retrieval rank stays available for diagnostics after reranking.
type RetrievedItem struct {
	// ID uniquely identifies the passage within the index. Assigned at
	// ingestion time (UUID per chunk).
	ID string `json:"id"`

	// Text is the passage content.
	Text string `json:"text"`

	// Metadata is an opaque mapping carried through from ingestion.
	// Recognized keys (source, page, title, company, creationdate) are
	// read defensively with defaults; absence must never fail a consumer.
	Metadata map[string]string `json:"metadata,omitempty"`

	// RetrievalScore is the raw similarity score from the vector index
	// (cosine similarity, larger is better).
	RetrievalScore float32 `json:"retrieval_score,omitempty"`

	// RerankScore is the cross-encoder relevance score (larger is
	// better). Only meaningful when Reranked is true.
	RerankScore float32 `json:"rerank_score,omitempty"`

	// Reranked reports whether RerankScore has been populated.
	Reranked bool `json:"reranked,omitempty"`
}

// Meta returns the metadata value for key, or fallback when the key is
// absent or empty.
func (it RetrievedItem) Meta(key, fallback string) string {
	if it.Metadata == nil {
		return fallback
	}
	if v, ok := it.Metadata[key]; ok && v != "" {
		return v
	}
	return fallback
}
