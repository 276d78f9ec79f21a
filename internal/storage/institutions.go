package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
)

// SaveInstitution upserts an institution registry entry by name.
func (s *SQLiteStore) SaveInstitution(ctx context.Context, inst *model.Institution) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if inst == nil {
		return fmt.Errorf("%w: institution", ErrNilParameter)
	}
	if err := validateString(inst.Name, "name"); err != nil {
		return err
	}

	domains, err := json.Marshal(emptyIfNil(inst.Domains))
	if err != nil {
		return fmt.Errorf("failed to encode domains: %w", err)
	}
	senders, err := json.Marshal(emptyIfNil(inst.Senders))
	if err != nil {
		return fmt.Errorf("failed to encode senders: %w", err)
	}
	signatures, err := json.Marshal(emptyIfNil(inst.Signatures))
	if err != nil {
		return fmt.Errorf("failed to encode signatures: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO institutions (name, country, domains, senders, signatures, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			country = excluded.country,
			domains = excluded.domains,
			senders = excluded.senders,
			signatures = excluded.signatures,
			is_active = excluded.is_active`,
		inst.Name, inst.Country, string(domains), string(senders),
		string(signatures), inst.IsActive)
	if err != nil {
		return fmt.Errorf("failed to save institution: %w", err)
	}

	if inst.ID == 0 {
		if id, idErr := res.LastInsertId(); idErr == nil {
			inst.ID = id
		}
	}
	return nil
}

// ListInstitutions returns every registered institution.
func (s *SQLiteStore) ListInstitutions(ctx context.Context) ([]model.Institution, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, country, domains, senders, signatures, is_active, created_at
		FROM institutions
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query institutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var institutions []model.Institution
	for rows.Next() {
		var inst model.Institution
		var domains, senders, signatures string
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Country, &domains,
			&senders, &signatures, &inst.IsActive, &inst.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan institution: %w", err)
		}
		if err := json.Unmarshal([]byte(domains), &inst.Domains); err != nil {
			return nil, fmt.Errorf("%w: institution %s domains: %v", common.ErrDatabaseCorrupted, inst.Name, err)
		}
		if err := json.Unmarshal([]byte(senders), &inst.Senders); err != nil {
			return nil, fmt.Errorf("%w: institution %s senders: %v", common.ErrDatabaseCorrupted, inst.Name, err)
		}
		if err := json.Unmarshal([]byte(signatures), &inst.Signatures); err != nil {
			return nil, fmt.Errorf("%w: institution %s signatures: %v", common.ErrDatabaseCorrupted, inst.Name, err)
		}
		institutions = append(institutions, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate institutions: %w", err)
	}
	return institutions, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
