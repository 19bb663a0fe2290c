package cache

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/policybot-ai/policybot/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "cache", "db.sqlite"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	items := []domain.RetrievedItem{
		{ID: "c1", Text: "The scheduled benefit is $50,000.", Metadata: map[string]string{"source": "policy.pdf", "page": "3"}, RetrievalScore: 0.91},
		{ID: "c2", Text: "Coverage begins on the effective date.", RetrievalScore: 0.64},
	}

	if err := store.Set(ctx, "what is the scheduled benefit?", Value{Kind: KindRetrieval, Items: items}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := store.Get(ctx, "what is the scheduled benefit?")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Kind != KindRetrieval {
		t.Fatalf("expected kind %q, got %q", KindRetrieval, got.Kind)
	}
	if len(got.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got.Items))
	}
	if got.Items[0].ID != "c1" || got.Items[0].RetrievalScore != 0.91 {
		t.Errorf("item 0 did not round-trip: %+v", got.Items[0])
	}
	if got.Items[0].Metadata["page"] != "3" {
		t.Errorf("metadata did not round-trip: %v", got.Items[0].Metadata)
	}
}

func TestStore_GetMiss(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Get(context.Background(), "never stored")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected cache miss")
	}
}

func TestStore_AnswerValue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := Value{Kind: KindAnswer, Answer: "The limit is $10,000.", Evidence: "Source: policy.pdf | Page: 2"}
	if err := store.Set(ctx, "answer:limit of benefit?", in); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := store.Get(ctx, "answer:limit of benefit?")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Answer != in.Answer || got.Evidence != in.Evidence {
		t.Errorf("answer value did not round-trip: %+v", got)
	}
}

func TestStore_Overwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "q", Value{Kind: KindAnswer, Answer: "first"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "q", Value{Kind: KindAnswer, Answer: "second"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := store.Get(ctx, "q")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Answer != "second" {
		t.Errorf("expected overwritten value, got %q", got.Answer)
	}
}

func TestHashKey_Determinism(t *testing.T) {
	if hashKey("abc") != hashKey("abc") {
		t.Error("same input must hash to the same key")
	}
	if hashKey("abc") == hashKey("abd") {
		t.Error("different inputs must hash to different keys")
	}
	// No normalization: whitespace and case variants are distinct keys.
	if hashKey("Query") == hashKey("query") {
		t.Error("case variants must be cache-distinct")
	}
	if hashKey("query ") == hashKey("query") {
		t.Error("whitespace variants must be cache-distinct")
	}
	if len(hashKey("")) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(hashKey("")))
	}
}

func TestStore_LegacyBareString(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Simulate an entry written by the old schema: an untagged bare
	// string under the hashed key.
	db, err := sql.Open("sqlite", store.path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY, kind TEXT NOT NULL, payload BLOB NOT NULL, updated_at TIMESTAMP NOT NULL)`); err != nil {
		t.Fatalf("schema: %v", err)
	}
	const legacy = "Answer not found in provided policies."
	if _, err := db.Exec("INSERT INTO entries (key, kind, payload, updated_at) VALUES (?, ?, ?, ?)",
		hashKey("old query"), "str", []byte(legacy), time.Now().UTC()); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, ok, err := store.Get(ctx, "old query")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit for legacy entry")
	}
	if got.Kind != KindLegacy {
		t.Errorf("expected legacy kind, got %q", got.Kind)
	}
	if got.Answer != legacy {
		t.Errorf("expected legacy answer %q, got %q", legacy, got.Answer)
	}
	if got.Evidence != "" {
		t.Errorf("legacy entries must read back with empty evidence, got %q", got.Evidence)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.sqlite")
	ctx := context.Background()

	store, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := store.Set(ctx, "persistent", Value{Kind: KindAnswer, Answer: "kept"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// A fresh Store against the same file sees the entry.
	reopened, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, ok, err := reopened.Get(ctx, "persistent")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if got.Answer != "kept" {
		t.Errorf("expected persisted value, got %q", got.Answer)
	}
}
