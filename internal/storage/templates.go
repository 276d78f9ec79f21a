package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
)

const templateColumns = `id, institution, family, version, rules, confidence,
	accept_threshold, success_count, failure_count, security_validated,
	human_reviewed, is_active, provenance, created_at, updated_at`

// SaveTemplate inserts a template, assigning its ID and version. A new
// template for an institution+family pair gets the next version number.
func (s *SQLiteStore) SaveTemplate(ctx context.Context, tmpl *model.Template) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTemplate(tmpl); err != nil {
		return err
	}

	rules, err := json.Marshal(tmpl.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	var version int
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM templates WHERE institution = ? AND family = ?`,
		tmpl.Institution, string(tmpl.Family)).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to compute template version: %w", err)
	}
	tmpl.Version = version

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (institution, family, version, rules, confidence,
			accept_threshold, security_validated, human_reviewed, is_active, provenance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tmpl.Institution, string(tmpl.Family), tmpl.Version, string(rules),
		tmpl.Confidence, tmpl.AcceptThreshold,
		tmpl.SecurityValidated, tmpl.HumanReviewed, tmpl.IsActive, string(tmpl.Provenance))
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read template id: %w", err)
	}
	tmpl.ID = id
	return nil
}

// GetTemplate returns the best active template for an institution+family
// pair: security-validated ones first, then by confidence and recency.
func (s *SQLiteStore) GetTemplate(ctx context.Context, institution string, family model.Family) (*model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(institution, "institution"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		WHERE institution = ? AND family = ? AND is_active = 1
		ORDER BY security_validated DESC, confidence DESC, version DESC
		LIMIT 1`,
		institution, string(family))
	return scanTemplate(row)
}

// GetTemplateByID returns one template by primary key.
func (s *SQLiteStore) GetTemplateByID(ctx context.Context, id int64) (*model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	return scanTemplate(row)
}

// GetTemplatesByInstitution returns every active template for an
// institution, most reliable first.
func (s *SQLiteStore) GetTemplatesByInstitution(ctx context.Context, institution string) ([]model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(institution, "institution"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		WHERE institution = ? AND is_active = 1
		ORDER BY security_validated DESC, confidence DESC`,
		institution)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTemplates(rows)
}

// ListTemplates returns all templates, active or not.
func (s *SQLiteStore) ListTemplates(ctx context.Context) ([]model.Template, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM templates
		ORDER BY institution, family, version DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanTemplates(rows)
}

// RecordTemplateSuccess increments the success counter.
func (s *SQLiteStore) RecordTemplateSuccess(ctx context.Context, id int64) error {
	return s.bumpTemplateCounter(ctx, id, "success_count")
}

// RecordTemplateFailure increments the failure counter.
func (s *SQLiteStore) RecordTemplateFailure(ctx context.Context, id int64) error {
	return s.bumpTemplateCounter(ctx, id, "failure_count")
}

func (s *SQLiteStore) bumpTemplateCounter(ctx context.Context, id int64, column string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET `+column+` = `+column+` + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to update template counter: %w", err)
	}
	return requireRow(res, id)
}

// PromoteTemplate marks a template security-validated. Promotion is
// one-way; templates lose trust only through deactivation.
func (s *SQLiteStore) PromoteTemplate(ctx context.Context, id int64, humanApproved bool) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE templates
		SET security_validated = 1,
			human_reviewed = CASE WHEN ? THEN 1 ELSE human_reviewed END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		humanApproved, id)
	if err != nil {
		return fmt.Errorf("failed to promote template: %w", err)
	}
	return requireRow(res, id)
}

// DeactivateTemplate retires a template without deleting it.
func (s *SQLiteStore) DeactivateTemplate(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE templates SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to deactivate template: %w", err)
	}
	return requireRow(res, id)
}

// UpdateTemplateRule replaces a single field rule in place. Counters reset
// so the revised template must re-earn its record.
func (s *SQLiteStore) UpdateTemplateRule(ctx context.Context, id int64, field string, rule model.FieldRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(field, "field"); err != nil {
		return err
	}

	tmpl, err := s.GetTemplateByID(ctx, id)
	if err != nil {
		return err
	}

	tmpl.Rules[field] = rule
	rules, err := json.Marshal(tmpl.Rules)
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE templates
		SET rules = ?, success_count = 0, failure_count = 0, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		string(rules), id)
	if err != nil {
		return fmt.Errorf("failed to update template rule: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*model.Template, error) {
	var tmpl model.Template
	var family, provenance, rules string

	err := row.Scan(&tmpl.ID, &tmpl.Institution, &family, &tmpl.Version, &rules,
		&tmpl.Confidence, &tmpl.AcceptThreshold, &tmpl.SuccessCount, &tmpl.FailureCount,
		&tmpl.SecurityValidated, &tmpl.HumanReviewed, &tmpl.IsActive, &provenance,
		&tmpl.CreatedAt, &tmpl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	tmpl.Family = model.Family(family)
	tmpl.Provenance = model.Provenance(provenance)
	if err := json.Unmarshal([]byte(rules), &tmpl.Rules); err != nil {
		return nil, fmt.Errorf("%w: template %d rules: %v", common.ErrDatabaseCorrupted, tmpl.ID, err)
	}
	return &tmpl, nil
}

func scanTemplates(rows *sql.Rows) ([]model.Template, error) {
	var templates []model.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tmpl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate templates: %w", err)
	}
	if len(templates) == 0 {
		return nil, common.ErrNotFound
	}
	return templates, nil
}

func requireRow(res sql.Result, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: template %d", common.ErrNotFound, id)
	}
	return nil
}
