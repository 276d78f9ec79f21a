package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
)

const resultColumns = `id, message_id, account_id, institution, family, amount,
	currency, merchant, location, reference, date, tier, confidence, cost,
	duration_ms, needs_review, failures, template_id, superseded_by, created_at`

// SaveResult persists a finalized extraction result. Amounts are stored as
// their exact decimal string, never as floats.
func (s *SQLiteStore) SaveResult(ctx context.Context, result *model.ExtractionResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateResult(result); err != nil {
		return err
	}

	failures, err := json.Marshal(result.Failures)
	if err != nil {
		return fmt.Errorf("failed to encode failures: %w", err)
	}
	if result.Failures == nil {
		failures = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (id, message_id, account_id, institution, family,
			amount, currency, merchant, location, reference, date, tier,
			confidence, cost, duration_ms, needs_review, failures, template_id,
			superseded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.MessageID, result.AccountID, result.Institution,
		string(result.Family), result.Amount.String(), result.Currency,
		result.Merchant, result.Location, result.Reference, result.Date,
		int(result.Tier), result.Confidence, result.Cost,
		result.Duration.Milliseconds(), result.NeedsReview, string(failures),
		result.TemplateID, nullString(result.SupersededBy), result.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetResultByID returns one result by ID.
func (s *SQLiteStore) GetResultByID(ctx context.Context, id string) (*model.ExtractionResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM results WHERE id = ?`, id)
	return scanResult(row)
}

// SupersedeResult links an old result to its correction-produced
// replacement. The old record stays for audit.
func (s *SQLiteStore) SupersedeResult(ctx context.Context, oldID, newID string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(oldID, "oldID"); err != nil {
		return err
	}
	if err := validateString(newID, "newID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE results SET superseded_by = ? WHERE id = ?`, newID, oldID)
	if err != nil {
		return fmt.Errorf("failed to supersede result: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: result %s", common.ErrNotFound, oldID)
	}
	return nil
}

// FindDuplicate looks for an earlier non-superseded result that this one
// would duplicate: the same message processed twice, or a reference
// collision on the same account within the window.
func (s *SQLiteStore) FindDuplicate(ctx context.Context, accountID, messageID, reference string, around time.Time, window time.Duration) (*model.ExtractionResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+resultColumns+`
		FROM results
		WHERE account_id = ?
		  AND superseded_by IS NULL
		  AND (message_id = ? OR (reference != '' AND reference = ? AND date BETWEEN ? AND ?))
		ORDER BY created_at ASC
		LIMIT 1`,
		accountID, messageID, reference, around.Add(-window), around.Add(window))

	result, err := scanResult(row)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	return result, err
}

// AmountHistory returns recent accepted amounts for one institution+family,
// newest first, for statistical validation.
func (s *SQLiteStore) AmountHistory(ctx context.Context, institution string, family model.Family, limit int) ([]decimal.Decimal, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT amount
		FROM results
		WHERE institution = ? AND family = ? AND needs_review = 0 AND superseded_by IS NULL
		ORDER BY created_at DESC
		LIMIT ?`,
		institution, string(family), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query amount history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var amounts []decimal.Decimal
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: stored amount %q: %v", common.ErrDatabaseCorrupted, raw, err)
		}
		amounts = append(amounts, amount)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate amounts: %w", err)
	}
	return amounts, nil
}

func scanResult(row rowScanner) (*model.ExtractionResult, error) {
	var result model.ExtractionResult
	var family, amount, failures string
	var durationMs int64
	var supersededBy sql.NullString

	err := row.Scan(&result.ID, &result.MessageID, &result.AccountID,
		&result.Institution, &family, &amount, &result.Currency,
		&result.Merchant, &result.Location, &result.Reference, &result.Date,
		&result.Tier, &result.Confidence, &result.Cost, &durationMs,
		&result.NeedsReview, &failures, &result.TemplateID, &supersededBy,
		&result.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan result: %w", err)
	}

	result.Family = model.Family(family)
	result.Duration = time.Duration(durationMs) * time.Millisecond
	result.SupersededBy = supersededBy.String
	result.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: result %s amount %q: %v", common.ErrDatabaseCorrupted, result.ID, amount, err)
	}
	if err := json.Unmarshal([]byte(failures), &result.Failures); err != nil {
		return nil, fmt.Errorf("%w: result %s failures: %v", common.ErrDatabaseCorrupted, result.ID, err)
	}
	return &result, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
