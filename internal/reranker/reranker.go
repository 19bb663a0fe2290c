// Package reranker provides cross-encoder re-ranking of retrieval results.
//
// Re-ranking scores each (query, passage) pair jointly rather than
// comparing embeddings independently, which is more accurate and much
// more expensive: one cross-encoder evaluation per candidate. That cost
// model is why the retriever over-fetches (20 candidates by default) and
// the reranker narrows to a small final set (5 by default).
package reranker

import (
	"context"
	"fmt"
	"sort"

	"github.com/policybot-ai/policybot/internal/domain"
)

// CrossEncoder scores a single (query, passage) pair. Scores are
// strictly larger-is-better and unrelated to vector similarity scores.
type CrossEncoder interface {
	Score(ctx context.Context, query, passage string) (float64, error)

	// ModelName returns the model identifier for logging.
	ModelName() string
}

// Reranker re-orders retrieved items by cross-encoder relevance.
type Reranker struct {
	encoder CrossEncoder
}

// New creates a Reranker backed by the given cross-encoder.
func New(encoder CrossEncoder) *Reranker {
	return &Reranker{encoder: encoder}
}

// Rerank scores every item against the query and returns the topN by
// descending rerank score. The sort is stable: items with equal scores
// keep their original retrieval order. The retrieval score on each item
// is preserved alongside the new rerank score.
//
// An empty input returns an empty result, not an error. A cross-encoder
// failure aborts the rerank; there is no fallback ranking.
func (r *Reranker) Rerank(ctx context.Context, query string, items []domain.RetrievedItem, topN int) ([]domain.RetrievedItem, error) {
	if len(items) == 0 || topN <= 0 {
		return nil, nil
	}

	scored := make([]domain.RetrievedItem, len(items))
	for i, item := range items {
		score, err := r.encoder.Score(ctx, query, item.Text)
		if err != nil {
			return nil, fmt.Errorf("reranker: score pair %d: %w", i, err)
		}
		item.RerankScore = float32(score)
		item.Reranked = true
		scored[i] = item
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].RerankScore > scored[j].RerankScore
	})

	if len(scored) > topN {
		scored = scored[:topN]
	}
	return scored, nil
}
