package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/model"
)

func queueReviewItem(t *testing.T, store *SQLiteStore, resultID string, priority int) *model.ReviewItem {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveResult(ctx, testResult(resultID, "msg-"+resultID, "45.20")))

	item := &model.ReviewItem{
		ResultID: resultID,
		Priority: priority,
		Status:   model.ReviewPending,
		Failures: []string{"confidence below threshold"},
	}
	require.NoError(t, store.SaveReviewItem(ctx, item))
	return item
}

func TestPendingReviewsSortMostUrgentFirst(t *testing.T) {
	store := newTestStore(t)

	queueReviewItem(t, store, "res-low", 8)
	urgent := queueReviewItem(t, store, "res-urgent", 2)

	items, err := store.ListPendingReviews(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, urgent.ID, items[0].ID)
	assert.Equal(t, []string{"confidence below threshold"}, items[0].Failures)
}

func TestResolveReviewIsFinal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := queueReviewItem(t, store, "res-1", 5)
	require.NoError(t, store.ResolveReview(ctx, item.ID, model.ReviewApproved))

	items, err := store.ListPendingReviews(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, items)

	// A resolved item cannot be resolved again
	err = store.ResolveReview(ctx, item.ID, model.ReviewRejected)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCorrectionConsensusCountsDistinctUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tmpl := testTemplate("banco-sol", model.FamilyPurchase, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, tmpl))
	require.NoError(t, store.SaveResult(ctx, testResult("res-1", "msg-1", "45.20")))

	save := func(userID string) {
		require.NoError(t, store.SaveCorrection(ctx, &model.Correction{
			UserID:     userID,
			ResultID:   "res-1",
			Field:      "merchant",
			NewValue:   "Café Del Sol",
			TemplateID: &tmpl.ID,
		}))
	}

	save("user-a")
	save("user-a")
	save("user-b")

	count, err := store.CountAgreeingCorrections(ctx, tmpl.ID, "merchant", "Café Del Sol")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// A different corrected value is a separate consensus bucket
	count, err = store.CountAgreeingCorrections(ctx, tmpl.ID, "merchant", "Soda El Sol")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUserOverrideUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tmpl := testTemplate("banco-sol", model.FamilyPurchase, 0.8)
	require.NoError(t, store.SaveTemplate(ctx, tmpl))

	rule := model.FieldRule{Pattern: "Café Del Sol", Type: model.FieldTypeText}
	require.NoError(t, store.SaveUserOverride(ctx, "user-a", tmpl.ID, "merchant", rule))

	// Re-saving the same key replaces, never duplicates
	rule.Pattern = "Soda El Sol"
	require.NoError(t, store.SaveUserOverride(ctx, "user-a", tmpl.ID, "merchant", rule))

	var count int
	err := store.db.QueryRow(`SELECT COUNT(*) FROM user_overrides`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestInstitutionUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	inst := &model.Institution{
		Name:     "banco-sol",
		Country:  "CR",
		Senders:  []string{"notificaciones@bancosol.fi.cr"},
		IsActive: true,
	}
	require.NoError(t, store.SaveInstitution(ctx, inst))

	inst.Domains = []string{"bancosol.fi.cr"}
	require.NoError(t, store.SaveInstitution(ctx, inst))

	all, err := store.ListInstitutions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"bancosol.fi.cr"}, all[0].Domains)
	assert.Equal(t, []string{"notificaciones@bancosol.fi.cr"}, all[0].Senders)
}

func TestSummarizeTiers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := func(tier model.Tier, outcome string, cost float64) {
		require.NoError(t, store.RecordMetric(ctx, &model.ProcessingMetric{
			MessageID: "msg-1",
			Tier:      tier,
			Outcome:   outcome,
			Cost:      cost,
		}))
	}

	record(model.TierTemplate, model.OutcomeAccepted, 0)
	record(model.TierTemplate, model.OutcomeAccepted, 0)
	record(model.TierDiscovery, model.OutcomeNeedsReview, 0.01)

	summaries, err := store.SummarizeTiers(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, model.TierTemplate, summaries[0].Tier)
	assert.Equal(t, 2, summaries[0].Count)
	assert.Equal(t, 2, summaries[0].Accepted)
	assert.Zero(t, summaries[0].Cost)

	assert.Equal(t, model.TierDiscovery, summaries[1].Tier)
	assert.Zero(t, summaries[1].Accepted)
	assert.InDelta(t, 0.01, summaries[1].Cost, 1e-9)
}
