package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievefin/sift/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func testTemplate(institution string, family model.Family, confidence float64) *model.Template {
	return &model.Template{
		Institution: institution,
		Family:      family,
		Rules: map[string]model.FieldRule{
			"amount": {Selector: "td.amount", Type: model.FieldTypeAmount},
		},
		Confidence:      confidence,
		AcceptThreshold: 0.8,
		Provenance:      model.ProvenanceSynthesized,
		IsActive:        true,
	}
}

func testResult(id, messageID string, amount string) *model.ExtractionResult {
	return &model.ExtractionResult{
		ID:          id,
		MessageID:   messageID,
		AccountID:   "acct-1",
		Institution: "banco-sol",
		Family:      model.FamilyPurchase,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "CRC",
		Merchant:    "Café Del Sol",
		Date:        time.Date(2025, 3, 15, 18, 0, 0, 0, time.UTC),
		Tier:        model.TierTemplate,
		Confidence:  0.85,
		CreatedAt:   time.Date(2025, 3, 15, 18, 1, 0, 0, time.UTC),
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Migrate(context.Background()))

	var version int
	err := store.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)
}

func TestValidation(t *testing.T) {
	store := newTestStore(t)

	err := store.SaveTemplate(context.Background(), &model.Template{})
	assert.ErrorIs(t, err, ErrInvalidTemplate)

	err = store.SaveResult(context.Background(), &model.ExtractionResult{ID: "x"})
	assert.ErrorIs(t, err, ErrInvalidResult)

	//nolint:staticcheck // deliberate nil-context check
	err = store.SaveTemplate(nil, testTemplate("banco-sol", model.FamilyPurchase, 0.8))
	assert.ErrorIs(t, err, ErrNilContext)
}
