package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/sievefin/sift/internal/model"
)

// RecordMetric appends one processing metric row.
func (s *SQLiteStore) RecordMetric(ctx context.Context, metric *model.ProcessingMetric) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if metric == nil {
		return fmt.Errorf("%w: metric", ErrNilParameter)
	}
	if err := validateString(metric.MessageID, "messageID"); err != nil {
		return err
	}

	createdAt := metric.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metrics (message_id, institution, family, tier, outcome,
			duration_ms, cost, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		metric.MessageID, metric.Institution, string(metric.Family),
		int(metric.Tier), metric.Outcome, metric.Duration.Milliseconds(),
		metric.Cost, metric.Confidence, createdAt)
	if err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}
	return nil
}

// TierSummary aggregates outcomes for one tier.
type TierSummary struct {
	Tier     model.Tier
	Count    int
	Cost     float64
	Accepted int
}

// SummarizeTiers reports per-tier volume, inference spend, and acceptance
// since the given time. Used by the stats command.
func (s *SQLiteStore) SummarizeTiers(ctx context.Context, since time.Time) ([]TierSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT tier,
			COUNT(*),
			COALESCE(SUM(cost), 0),
			COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0)
		FROM metrics
		WHERE created_at >= ?
		GROUP BY tier
		ORDER BY tier`,
		model.OutcomeAccepted, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []TierSummary
	for rows.Next() {
		var summary TierSummary
		if err := rows.Scan(&summary.Tier, &summary.Count, &summary.Cost, &summary.Accepted); err != nil {
			return nil, fmt.Errorf("failed to scan metric summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metric summaries: %w", err)
	}
	return summaries, nil
}
