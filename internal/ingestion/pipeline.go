package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/policybot-ai/policybot/internal/embedder"
	"github.com/policybot-ai/policybot/internal/repository"
	"github.com/policybot-ai/policybot/internal/vectorstore"
)

// Pipeline ingests document text: split, embed, index, record.
type Pipeline struct {
	splitter *Splitter
	embedder embedder.Embedder
	index    vectorstore.VectorIndex
	docs     repository.DocumentRepository
	logger   *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(splitter *Splitter, emb embedder.Embedder, index vectorstore.VectorIndex, docs repository.DocumentRepository, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		splitter: splitter,
		embedder: emb,
		index:    index,
		docs:     docs,
		logger:   logger,
	}
}

// Request describes a document to ingest.
type Request struct {
	// Source names where the content came from (e.g. the uploaded file name).
	Source string

	// Title is an optional human-readable title.
	Title string

	// Content is the raw document text.
	Content string

	// Metadata is attached to every chunk (merged with source/title/page keys).
	Metadata map[string]string
}

// Ingest processes one document. Content already ingested (same hash)
// is skipped and the existing record returned.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*repository.Document, error) {
	if req.Source == "" {
		return nil, fmt.Errorf("ingestion: source is required")
	}

	sum := sha256.Sum256([]byte(req.Content))
	contentHash := hex.EncodeToString(sum[:])

	if existing, err := p.docs.GetByHash(ctx, contentHash); err == nil {
		p.logger.Info("document already ingested", "source", req.Source, "document_id", existing.ID)
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("ingestion: check content hash: %w", err)
	}

	pieces := p.splitter.Split(req.Content)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("ingestion: document %q has no content", req.Source)
	}

	vectors, err := p.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		p.recordFailure(ctx, req, contentHash, err)
		return nil, fmt.Errorf("ingestion: embed chunks: %w", err)
	}

	chunks := make([]vectorstore.Chunk, len(pieces))
	for i, text := range pieces {
		metadata := map[string]string{
			"source":      req.Source,
			"chunk_index": fmt.Sprintf("%d", i),
		}
		if req.Title != "" {
			metadata["title"] = req.Title
		}
		for k, v := range req.Metadata {
			metadata[k] = v
		}

		chunks[i] = vectorstore.Chunk{
			ID:       uuid.New().String(),
			Text:     text,
			Vector:   vectors[i],
			Metadata: metadata,
		}
	}

	if err := p.index.EnsureCollection(ctx, p.embedder.Dimension()); err != nil {
		p.recordFailure(ctx, req, contentHash, err)
		return nil, fmt.Errorf("ingestion: ensure collection: %w", err)
	}
	if err := p.index.Upsert(ctx, chunks); err != nil {
		p.recordFailure(ctx, req, contentHash, err)
		return nil, fmt.Errorf("ingestion: index chunks: %w", err)
	}

	now := time.Now().UTC()
	doc := &repository.Document{
		ID:          uuid.New(),
		Source:      req.Source,
		Title:       req.Title,
		ContentHash: contentHash,
		ChunkCount:  len(chunks),
		Status:      repository.StatusCompleted,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingestion: record document: %w", err)
	}

	p.logger.Info("document ingested", "source", req.Source, "document_id", doc.ID, "chunks", len(chunks))
	return doc, nil
}

// Remove deletes a document record and all chunks ingested from its
// source.
func (p *Pipeline) Remove(ctx context.Context, id uuid.UUID) error {
	doc, err := p.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := p.index.DeleteBySource(ctx, doc.Source); err != nil {
		return fmt.Errorf("ingestion: delete chunks: %w", err)
	}
	if err := p.docs.Delete(ctx, id); err != nil {
		return fmt.Errorf("ingestion: delete record: %w", err)
	}
	p.logger.Info("document removed", "source", doc.Source, "document_id", id)
	return nil
}

// recordFailure writes a failed document record. Best effort: the
// original error is what the caller sees.
func (p *Pipeline) recordFailure(ctx context.Context, req Request, contentHash string, cause error) {
	now := time.Now().UTC()
	doc := &repository.Document{
		ID:           uuid.New(),
		Source:       req.Source,
		Title:        req.Title,
		ContentHash:  contentHash,
		Status:       repository.StatusFailed,
		ErrorMessage: cause.Error(),
		Metadata:     req.Metadata,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := p.docs.Create(ctx, doc); err != nil {
		p.logger.Warn("failed to record ingestion failure", "source", req.Source, "error", err)
	}
}
