package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
)

// SaveCorrection records a user's field-level correction.
func (s *SQLiteStore) SaveCorrection(ctx context.Context, correction *model.Correction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if correction == nil {
		return fmt.Errorf("%w: correction", ErrNilParameter)
	}
	if err := validateString(correction.UserID, "userID"); err != nil {
		return err
	}
	if err := validateString(correction.ResultID, "resultID"); err != nil {
		return err
	}
	if err := validateString(correction.Field, "field"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO corrections (user_id, result_id, field, old_value, new_value, template_id)
		VALUES (?, ?, ?, ?, ?, ?)`,
		correction.UserID, correction.ResultID, correction.Field,
		correction.OldValue, correction.NewValue, correction.TemplateID)
	if err != nil {
		return fmt.Errorf("failed to save correction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read correction id: %w", err)
	}
	correction.ID = id
	return nil
}

// CountAgreeingCorrections counts distinct users who corrected the same
// template field to the same value. Repeated corrections from one user
// count once.
func (s *SQLiteStore) CountAgreeingCorrections(ctx context.Context, templateID int64, field, newValue string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateString(field, "field"); err != nil {
		return 0, err
	}

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id)
		FROM corrections
		WHERE template_id = ? AND field = ? AND new_value = ?`,
		templateID, field, newValue).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count corrections: %w", err)
	}
	return count, nil
}

// MarkCorrectionApplied flags a correction as folded into its template.
func (s *SQLiteStore) MarkCorrectionApplied(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE corrections SET applied_to_template = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark correction applied: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: correction %d", common.ErrNotFound, id)
	}
	return nil
}

// SaveUserOverride upserts a per-user rule override. Overrides shadow the
// shared template for that user only, until consensus changes the template
// itself.
func (s *SQLiteStore) SaveUserOverride(ctx context.Context, userID string, templateID int64, field string, rule model.FieldRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(userID, "userID"); err != nil {
		return err
	}
	if err := validateString(field, "field"); err != nil {
		return err
	}

	encoded, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to encode rule: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_overrides (user_id, template_id, field, rule)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, template_id, field)
		DO UPDATE SET rule = excluded.rule, updated_at = CURRENT_TIMESTAMP`,
		userID, templateID, field, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to save user override: %w", err)
	}
	return nil
}
