package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
)

// SaveReviewItem queues a result for human review.
func (s *SQLiteStore) SaveReviewItem(ctx context.Context, item *model.ReviewItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: item", ErrNilParameter)
	}
	if err := validateString(item.ResultID, "resultID"); err != nil {
		return err
	}

	failures, err := json.Marshal(item.Failures)
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}
	if item.Failures == nil {
		failures = []byte("[]")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO review_items (result_id, priority, status, failures)
		VALUES (?, ?, ?, ?)`,
		item.ResultID, item.Priority, string(item.Status), string(failures))
	if err != nil {
		return fmt.Errorf("failed to save review item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read review item id: %w", err)
	}
	item.ID = id
	return nil
}

// ListPendingReviews returns pending items, most urgent first.
func (s *SQLiteStore) ListPendingReviews(ctx context.Context, limit int) ([]model.ReviewItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, result_id, priority, status, failures, created_at, resolved_at
		FROM review_items
		WHERE status = ?
		ORDER BY priority ASC, created_at ASC
		LIMIT ?`,
		string(model.ReviewPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query review items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var items []model.ReviewItem
	for rows.Next() {
		var item model.ReviewItem
		var status, failures string
		if err := rows.Scan(&item.ID, &item.ResultID, &item.Priority, &status,
			&failures, &item.CreatedAt, &item.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		item.Status = model.ReviewStatus(status)
		if err := json.Unmarshal([]byte(failures), &item.Failures); err != nil {
			return nil, fmt.Errorf("%w: review item %d failures: %v", common.ErrDatabaseCorrupted, item.ID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate review items: %w", err)
	}
	return items, nil
}

// ResolveReview finalizes a review item with its outcome.
func (s *SQLiteStore) ResolveReview(ctx context.Context, id int64, status model.ReviewStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE review_items
		SET status = ?, resolved_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
		string(status), id, string(model.ReviewPending))
	if err != nil {
		return fmt.Errorf("failed to resolve review item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: pending review item %d", common.ErrNotFound, id)
	}
	return nil
}
