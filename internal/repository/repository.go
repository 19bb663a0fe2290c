// Package repository defines domain models and data access interfaces for
// ingested documents and user feedback.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Document statuses
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Document represents an ingested policy document
type Document struct {
	ID           uuid.UUID         `json:"id"`
	Source       string            `json:"source"`
	Title        string            `json:"title,omitempty"`
	ContentHash  string            `json:"content_hash"`
	ChunkCount   int               `json:"chunk_count"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Feedback represents a user's verdict on a generated answer
type Feedback struct {
	ID        uuid.UUID `json:"id"`
	Query     string    `json:"query"`
	Helpful   bool      `json:"helpful"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentRepository defines operations for document persistence
type DocumentRepository interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByHash(ctx context.Context, hash string) (*Document, error)
	List(ctx context.Context, limit, offset int) ([]*Document, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// FeedbackRepository defines operations for feedback persistence
type FeedbackRepository interface {
	Create(ctx context.Context, fb *Feedback) error
	List(ctx context.Context, limit, offset int) ([]*Feedback, int, error)
}
