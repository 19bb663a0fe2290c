// Package retriever orchestrates the first retrieval stage: cache
// lookup, query embedding and vector index search.
package retriever

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/policybot-ai/policybot/internal/cache"
	"github.com/policybot-ai/policybot/internal/domain"
	"github.com/policybot-ai/policybot/internal/embedder"
	"github.com/policybot-ai/policybot/internal/vectorstore"
)

// Retriever returns the topK most similar passages for a query, serving
// repeated queries from the persistent cache. Concurrent misses for the
// same query are coalesced: the second caller waits on the first
// pipeline's result instead of embedding and searching again.
type Retriever struct {
	cache    *cache.Store
	embedder embedder.Embedder
	index    vectorstore.VectorIndex
	logger   *slog.Logger
	group    singleflight.Group
}

// New creates a Retriever over the given collaborators.
func New(store *cache.Store, emb embedder.Embedder, index vectorstore.VectorIndex, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		cache:    store,
		embedder: emb,
		index:    index,
		logger:   logger,
	}
}

// Retrieve returns up to topK passages ordered by the index's native
// similarity ranking. Results are not reranked. Embedder and index
// failures propagate unretried; retry policy belongs to the caller.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]domain.RetrievedItem, error) {
	if topK <= 0 {
		return nil, nil
	}

	if items, ok, err := r.lookup(ctx, query); err != nil {
		return nil, err
	} else if ok {
		r.logger.Debug("retrieval cache hit", "query", query)
		return items, nil
	}

	// Coalesce concurrent misses for the same query. The flight
	// re-checks the cache so a caller that lost the race to an already
	// finished flight still avoids duplicate work.
	result, err, _ := r.group.Do(query, func() (any, error) {
		if items, ok, err := r.lookup(ctx, query); err != nil {
			return nil, err
		} else if ok {
			return items, nil
		}
		return r.fetch(ctx, query, topK)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.RetrievedItem), nil
}

// lookup consults the cache. Entries of a different kind under the same
// key count as a miss.
func (r *Retriever) lookup(ctx context.Context, query string) ([]domain.RetrievedItem, bool, error) {
	value, ok, err := r.cache.Get(ctx, query)
	if err != nil {
		return nil, false, fmt.Errorf("retriever: cache lookup: %w", err)
	}
	if !ok || value.Kind != cache.KindRetrieval {
		return nil, false, nil
	}
	return value.Items, true, nil
}

// fetch runs the full miss path: embed, search, cache, return.
func (r *Retriever) fetch(ctx context.Context, query string, topK int) ([]domain.RetrievedItem, error) {
	r.logger.Debug("retrieval cache miss", "query", query, "top_k", topK)

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}

	results, err := r.index.Query(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("retriever: index query: %w", err)
	}

	items := make([]domain.RetrievedItem, len(results))
	for i, res := range results {
		items[i] = domain.RetrievedItem{
			ID:             res.ID,
			Text:           res.Text,
			Metadata:       res.Metadata,
			RetrievalScore: res.Score,
		}
	}

	if err := r.cache.Set(ctx, query, cache.Value{Kind: cache.KindRetrieval, Items: items}); err != nil {
		return nil, fmt.Errorf("retriever: cache store: %w", err)
	}

	return items, nil
}
