// Package cache provides a persistent query cache backed by a single
// SQLite file. Entries are keyed by the SHA-256 digest of the raw key
// string and carry an explicit kind tag so that retrieval lists, answer
// tuples and legacy bare-string values written by older versions can all
// be read back without shape sniffing.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/policybot-ai/policybot/internal/domain"
)

// Kind discriminates the shape of a cached value.
type Kind string

const (
	// KindRetrieval marks a cached list of retrieved items written by
	// the retriever before reranking.
	KindRetrieval Kind = "retrieval"

	// KindAnswer marks a cached (answer, evidence) pair written after
	// generation.
	KindAnswer Kind = "answer"

	// KindLegacy marks a value stored by an older schema as a bare
	// answer string. It reads back as answer-only with empty evidence.
	KindLegacy Kind = "legacy"
)

// Value is a tagged cache entry. Exactly the fields implied by Kind are
// populated: Items for KindRetrieval, Answer and Evidence for KindAnswer,
// Answer alone for KindLegacy.
type Value struct {
	Kind     Kind
	Items    []domain.RetrievedItem
	Answer   string
	Evidence string
}

// answerPayload is the persisted JSON shape for KindAnswer values.
type answerPayload struct {
	Answer   string `json:"answer"`
	Evidence string `json:"evidence"`
}

// Store is a persistent key/value cache. Each operation opens the
// backing database, performs the single statement, and closes the handle
// again, so no file handle outlives a call. SQLite serializes writers at
// the file level, which keeps concurrent Sets from corrupting the store.
type Store struct {
	path string
}

// New creates a cache store writing to the SQLite file at path. The
// parent directory is created if missing; the file itself is created on
// first use.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("cache: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cache: create directory: %w", err)
		}
	}
	return &Store{path: path}, nil
}

// hashKey derives the fixed-length cache key from the raw key string.
// The raw key is hashed as-is: no trimming or case folding, so queries
// that differ only in whitespace or case are cache-distinct.
func hashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// open opens the backing database and ensures the schema exists. The
// caller must close the returned handle.
func (s *Store) open() (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return nil, fmt.Errorf("cache: open database: %w", err)
	}

	// Single connection: SQLite allows one writer and the store is
	// opened per operation anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: set busy timeout: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS entries (
			key        TEXT PRIMARY KEY,
			kind       TEXT NOT NULL,
			payload    BLOB NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: ensure schema: %w", err)
	}

	return db, nil
}

// Get returns the cached value for rawKey. The second return value is
// false when no entry exists.
func (s *Store) Get(ctx context.Context, rawKey string) (Value, bool, error) {
	db, err := s.open()
	if err != nil {
		return Value{}, false, err
	}
	defer db.Close()

	var (
		kind    string
		payload []byte
	)
	row := db.QueryRowContext(ctx, "SELECT kind, payload FROM entries WHERE key = ?", hashKey(rawKey))
	if err := row.Scan(&kind, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Value{}, false, nil
		}
		return Value{}, false, fmt.Errorf("cache: get: %w", err)
	}

	value, err := decodeValue(Kind(kind), payload)
	if err != nil {
		return Value{}, false, err
	}
	return value, true, nil
}

// Set stores value under rawKey, replacing any existing entry.
func (s *Store) Set(ctx context.Context, rawKey string, value Value) error {
	kind, payload, err := encodeValue(value)
	if err != nil {
		return err
	}

	db, err := s.open()
	if err != nil {
		return err
	}
	defer db.Close()

	const upsert = `
		INSERT INTO entries (key, kind, payload, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET kind = excluded.kind, payload = excluded.payload, updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, upsert, hashKey(rawKey), string(kind), payload, time.Now().UTC()); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

func encodeValue(value Value) (Kind, []byte, error) {
	switch value.Kind {
	case KindRetrieval:
		payload, err := json.Marshal(value.Items)
		if err != nil {
			return "", nil, fmt.Errorf("cache: encode retrieval value: %w", err)
		}
		return KindRetrieval, payload, nil
	case KindAnswer:
		payload, err := json.Marshal(answerPayload{Answer: value.Answer, Evidence: value.Evidence})
		if err != nil {
			return "", nil, fmt.Errorf("cache: encode answer value: %w", err)
		}
		return KindAnswer, payload, nil
	case KindLegacy:
		return KindLegacy, []byte(value.Answer), nil
	default:
		return "", nil, fmt.Errorf("cache: unknown value kind %q", value.Kind)
	}
}

// decodeValue interprets a stored row. Unknown kinds and undecodable
// payloads fall back to the legacy interpretation (bare answer string
// with empty evidence) rather than failing the read, so entries written
// by older versions stay readable.
func decodeValue(kind Kind, payload []byte) (Value, error) {
	switch kind {
	case KindRetrieval:
		var items []domain.RetrievedItem
		if err := json.Unmarshal(payload, &items); err != nil {
			return Value{Kind: KindLegacy, Answer: string(payload)}, nil
		}
		return Value{Kind: KindRetrieval, Items: items}, nil
	case KindAnswer:
		var ap answerPayload
		if err := json.Unmarshal(payload, &ap); err != nil {
			return Value{Kind: KindLegacy, Answer: string(payload)}, nil
		}
		return Value{Kind: KindAnswer, Answer: ap.Answer, Evidence: ap.Evidence}, nil
	default:
		return Value{Kind: KindLegacy, Answer: string(payload)}, nil
	}
}
