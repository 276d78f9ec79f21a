package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
)

func TestSaveTemplateVersionsPerPair(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testTemplate("banco-sol", model.FamilyPurchase, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, first))
	assert.Equal(t, 1, first.Version)

	second := testTemplate("banco-sol", model.FamilyPurchase, 0.85)
	require.NoError(t, store.SaveTemplate(ctx, second))
	assert.Equal(t, 2, second.Version)

	// A different family starts its own version sequence
	other := testTemplate("banco-sol", model.FamilyTransfer, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, other))
	assert.Equal(t, 1, other.Version)
}

func TestGetTemplatePrefersSecurityValidated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	newer := testTemplate("banco-sol", model.FamilyPurchase, 0.9)
	require.NoError(t, store.SaveTemplate(ctx, newer))

	trusted := testTemplate("banco-sol", model.FamilyPurchase, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, trusted))
	require.NoError(t, store.PromoteTemplate(ctx, trusted.ID, false))

	// The validated template wins despite lower confidence
	got, err := store.GetTemplate(ctx, "banco-sol", model.FamilyPurchase)
	require.NoError(t, err)
	assert.Equal(t, trusted.ID, got.ID)
	assert.True(t, got.SecurityValidated)
}

func TestGetTemplateNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetTemplate(context.Background(), "unknown-bank", model.FamilyPurchase)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestTemplateCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tmpl := testTemplate("banco-sol", model.FamilyPurchase, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, tmpl))

	require.NoError(t, store.RecordTemplateSuccess(ctx, tmpl.ID))
	require.NoError(t, store.RecordTemplateSuccess(ctx, tmpl.ID))
	require.NoError(t, store.RecordTemplateFailure(ctx, tmpl.ID))

	got, err := store.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.SuccessCount)
	assert.Equal(t, 1, got.FailureCount)

	err = store.RecordTemplateSuccess(ctx, 9999)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPromoteTemplate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tmpl := testTemplate("banco-sol", model.FamilyPurchase, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, tmpl))

	// Automatic promotion validates without claiming human review
	require.NoError(t, store.PromoteTemplate(ctx, tmpl.ID, false))
	got, err := store.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, got.SecurityValidated)
	assert.False(t, got.HumanReviewed)

	require.NoError(t, store.PromoteTemplate(ctx, tmpl.ID, true))
	got, err = store.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.True(t, got.HumanReviewed)
}

func TestDeactivateTemplateHidesFromLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tmpl := testTemplate("banco-sol", model.FamilyPurchase, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, tmpl))
	require.NoError(t, store.DeactivateTemplate(ctx, tmpl.ID))

	_, err := store.GetTemplate(ctx, "banco-sol", model.FamilyPurchase)
	assert.ErrorIs(t, err, common.ErrNotFound)

	// Still present for audit via the unfiltered listing
	all, err := store.ListTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)
}

func TestUpdateTemplateRuleResetsCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tmpl := testTemplate("banco-sol", model.FamilyPurchase, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, tmpl))
	require.NoError(t, store.RecordTemplateSuccess(ctx, tmpl.ID))

	rule := model.FieldRule{Pattern: `Café Del Sol`, Type: model.FieldTypeText}
	require.NoError(t, store.UpdateTemplateRule(ctx, tmpl.ID, "merchant", rule))

	got, err := store.GetTemplateByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, rule, got.Rules["merchant"])
	assert.Zero(t, got.SuccessCount)
	assert.Zero(t, got.FailureCount)
}
