package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/policybot-ai/policybot/internal/repository"
	"github.com/policybot-ai/policybot/internal/vectorstore"
)

type fakeEmbedder struct {
	batchCalls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 2, 3}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 2}
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return 3 }
func (f *fakeEmbedder) ModelName() string { return "fake" }

type fakeIndex struct {
	upserted       []vectorstore.Chunk
	ensured        bool
	deletedSources []string
}

func (f *fakeIndex) EnsureCollection(ctx context.Context, dimension int) error {
	f.ensured = true
	return nil
}

func (f *fakeIndex) Upsert(ctx context.Context, chunks []vectorstore.Chunk) error {
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, topK int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (f *fakeIndex) Count(ctx context.Context) (uint64, error) { return uint64(len(f.upserted)), nil }

func (f *fakeIndex) DeleteBySource(ctx context.Context, source string) error {
	f.deletedSources = append(f.deletedSources, source)
	return nil
}

type memDocRepo struct {
	docs   map[uuid.UUID]*repository.Document
	byHash map[string]*repository.Document
}

func newMemDocRepo() *memDocRepo {
	return &memDocRepo{
		docs:   make(map[uuid.UUID]*repository.Document),
		byHash: make(map[string]*repository.Document),
	}
}

func (m *memDocRepo) Create(ctx context.Context, doc *repository.Document) error {
	m.docs[doc.ID] = doc
	m.byHash[doc.ContentHash] = doc
	return nil
}

func (m *memDocRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (m *memDocRepo) GetByHash(ctx context.Context, hash string) (*repository.Document, error) {
	doc, ok := m.byHash[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return doc, nil
}

func (m *memDocRepo) List(ctx context.Context, limit, offset int) ([]*repository.Document, int, error) {
	var out []*repository.Document
	for _, d := range m.docs {
		out = append(out, d)
	}
	return out, len(out), nil
}

func (m *memDocRepo) Delete(ctx context.Context, id uuid.UUID) error {
	doc, ok := m.docs[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(m.byHash, doc.ContentHash)
	delete(m.docs, id)
	return nil
}

func TestPipeline_Ingest(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	repo := newMemDocRepo()
	p := NewPipeline(NewSplitter(100, 20), emb, idx, repo, nil)

	content := strings.Repeat("The policy excludes intentional damage. ", 10)
	doc, err := p.Ingest(context.Background(), Request{
		Source:  "auto-policy.pdf",
		Title:   "Auto Policy",
		Content: content,
		Metadata: map[string]string{
			"company": "Acme Mutual",
		},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if doc.Status != repository.StatusCompleted {
		t.Errorf("status = %q, want %q", doc.Status, repository.StatusCompleted)
	}
	if doc.ChunkCount == 0 || doc.ChunkCount != len(idx.upserted) {
		t.Errorf("chunk count %d, upserted %d", doc.ChunkCount, len(idx.upserted))
	}
	if !idx.ensured {
		t.Error("collection was not ensured before upsert")
	}

	for i, c := range idx.upserted {
		if c.Metadata["source"] != "auto-policy.pdf" {
			t.Errorf("chunk %d source = %q", i, c.Metadata["source"])
		}
		if c.Metadata["title"] != "Auto Policy" {
			t.Errorf("chunk %d title = %q", i, c.Metadata["title"])
		}
		if c.Metadata["company"] != "Acme Mutual" {
			t.Errorf("chunk %d missing custom metadata", i)
		}
		if _, err := uuid.Parse(c.ID); err != nil {
			t.Errorf("chunk %d id %q is not a UUID", i, c.ID)
		}
		if len(c.Vector) != 3 {
			t.Errorf("chunk %d vector dimension %d", i, len(c.Vector))
		}
	}
}

func TestPipeline_SkipsDuplicateContent(t *testing.T) {
	emb := &fakeEmbedder{}
	idx := &fakeIndex{}
	repo := newMemDocRepo()
	p := NewPipeline(NewSplitter(100, 20), emb, idx, repo, nil)

	req := Request{Source: "home-policy.pdf", Content: "Dwelling coverage protects the structure of your home."}

	first, err := p.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	second, err := p.Ingest(context.Background(), req)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}

	if first.ID != second.ID {
		t.Error("duplicate content created a new document record")
	}
	if emb.batchCalls != 1 {
		t.Errorf("embedder called %d times, want 1", emb.batchCalls)
	}
}

// wrappingDocRepo wraps the not-found sentinel the way a real
// repository layer might.
type wrappingDocRepo struct {
	*memDocRepo
}

func (w *wrappingDocRepo) GetByHash(ctx context.Context, hash string) (*repository.Document, error) {
	doc, err := w.memDocRepo.GetByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get by hash: %w", err)
	}
	return doc, nil
}

func TestPipeline_WrappedNotFoundIsAMiss(t *testing.T) {
	repo := &wrappingDocRepo{memDocRepo: newMemDocRepo()}
	p := NewPipeline(NewSplitter(100, 20), &fakeEmbedder{}, &fakeIndex{}, repo, nil)

	doc, err := p.Ingest(context.Background(), Request{Source: "boat-policy.pdf", Content: "Hull coverage applies while afloat."})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if doc.Status != repository.StatusCompleted {
		t.Errorf("status = %q, want %q", doc.Status, repository.StatusCompleted)
	}
}

func TestPipeline_RequiresSource(t *testing.T) {
	p := NewPipeline(NewSplitter(100, 20), &fakeEmbedder{}, &fakeIndex{}, newMemDocRepo(), nil)
	if _, err := p.Ingest(context.Background(), Request{Content: "text"}); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestPipeline_EmptyContent(t *testing.T) {
	p := NewPipeline(NewSplitter(100, 20), &fakeEmbedder{}, &fakeIndex{}, newMemDocRepo(), nil)
	if _, err := p.Ingest(context.Background(), Request{Source: "empty.pdf", Content: "   \n  "}); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestPipeline_Remove(t *testing.T) {
	idx := &fakeIndex{}
	repo := newMemDocRepo()
	p := NewPipeline(NewSplitter(100, 20), &fakeEmbedder{}, idx, repo, nil)

	doc, err := p.Ingest(context.Background(), Request{Source: "life-policy.pdf", Content: "Term life coverage lasts twenty years."})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := p.Remove(context.Background(), doc.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(idx.deletedSources) != 1 || idx.deletedSources[0] != "life-policy.pdf" {
		t.Errorf("index deletion not forwarded: %v", idx.deletedSources)
	}
	if _, err := repo.GetByID(context.Background(), doc.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("record still present after Remove: %v", err)
	}

	if err := p.Remove(context.Background(), uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound for unknown id", err)
	}
}

type failingIndex struct {
	fakeIndex
}

func (f *failingIndex) Upsert(ctx context.Context, chunks []vectorstore.Chunk) error {
	return errors.New("qdrant unavailable")
}

func TestPipeline_RecordsFailure(t *testing.T) {
	repo := newMemDocRepo()
	p := NewPipeline(NewSplitter(100, 20), &fakeEmbedder{}, &failingIndex{}, repo, nil)

	_, err := p.Ingest(context.Background(), Request{Source: "bad.pdf", Content: "some policy text"})
	if err == nil {
		t.Fatal("expected error from failing index")
	}

	docs, _, _ := repo.List(context.Background(), 10, 0)
	if len(docs) != 1 {
		t.Fatalf("got %d records, want 1 failure record", len(docs))
	}
	if docs[0].Status != repository.StatusFailed {
		t.Errorf("status = %q, want %q", docs[0].Status, repository.StatusFailed)
	}
	if docs[0].ErrorMessage == "" {
		t.Error("failure record has no error message")
	}
}
