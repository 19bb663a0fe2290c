package postgres

import (
	"context"
	"fmt"

	"github.com/policybot-ai/policybot/internal/repository"
)

// FeedbackRepo implements repository.FeedbackRepository
type FeedbackRepo struct {
	db *DB
}

// NewFeedbackRepo creates a new feedback repository
func NewFeedbackRepo(db *DB) *FeedbackRepo {
	return &FeedbackRepo{db: db}
}

// Create stores a feedback entry
func (r *FeedbackRepo) Create(ctx context.Context, fb *repository.Feedback) error {
	query := `
		INSERT INTO feedback (id, query, helpful, comment, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Pool.Exec(ctx, query, fb.ID, fb.Query, fb.Helpful, fb.Comment, fb.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// List retrieves feedback entries with pagination, newest first
func (r *FeedbackRepo) List(ctx context.Context, limit, offset int) ([]*repository.Feedback, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count feedback: %w", err)
	}

	query := `
		SELECT id, query, helpful, comment, created_at
		FROM feedback
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.db.Pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var entries []*repository.Feedback
	for rows.Next() {
		var fb repository.Feedback
		if err := rows.Scan(&fb.ID, &fb.Query, &fb.Helpful, &fb.Comment, &fb.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan feedback: %w", err)
		}
		entries = append(entries, &fb)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate feedback: %w", err)
	}

	return entries, total, nil
}

// Ensure FeedbackRepo implements the interface
var _ repository.FeedbackRepository = (*FeedbackRepo)(nil)
