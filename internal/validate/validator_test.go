package validate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievefin/sift/internal/extract"
	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
	"github.com/sievefin/sift/internal/service"
	"github.com/sievefin/sift/internal/storage"
	"github.com/sievefin/sift/internal/validate"
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func normalized(providerID string) *normalize.Normalized {
	return normalize.Normalize(&model.Message{
		ReceivedAt: time.Now(),
		ProviderID: providerID,
		AccountID:  "acct-1",
		Sender:     "notificaciones@bancosol.fi.cr",
	})
}

func classification() model.Classification {
	return model.Classification{
		Institution:           "banco-sol",
		Family:                model.FamilyPurchase,
		InstitutionConfidence: 0.9,
		FamilyConfidence:      0.9,
		TransactionLikelihood: 0.9,
	}
}

func candidate(conf float64) *extract.Candidate {
	return &extract.Candidate{
		Amount:     decimal.RequireFromString("45.20"),
		Currency:   "CRC",
		Date:       time.Now().Add(-2 * time.Hour),
		Merchant:   "Café Del Sol",
		Reference:  "REF-1234",
		Tier:       model.TierTemplate,
		Confidence: conf,
	}
}

func TestFinalizeAcceptsCleanCandidate(t *testing.T) {
	store := newStore(t)
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	result, events, err := v.Finalize(context.Background(), candidate(0.85), normalized("msg-1"), classification())
	require.NoError(t, err)

	assert.Equal(t, 0.85, result.Confidence)
	assert.False(t, result.NeedsReview)
	assert.Empty(t, events)

	// The result persisted
	saved, err := store.GetResultByID(context.Background(), result.ID)
	require.NoError(t, err)
	assert.True(t, saved.Amount.Equal(result.Amount))
}

func TestFinalizeTakesMinimumOfChecks(t *testing.T) {
	store := newStore(t)
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	// Future-dated transaction fails the business check outright
	cand := candidate(0.95)
	cand.Date = time.Now().Add(48 * time.Hour)

	result, _, err := v.Finalize(context.Background(), cand, normalized("msg-2"), classification())
	require.NoError(t, err)

	assert.Zero(t, result.Confidence)
	assert.True(t, result.NeedsReview)
	assert.NotEmpty(t, result.Failures)
}

func TestFinalizeRejectsNonPositiveAmount(t *testing.T) {
	store := newStore(t)
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	cand := candidate(0.9)
	cand.Amount = decimal.Zero

	result, _, err := v.Finalize(context.Background(), cand, normalized("msg-3"), classification())
	require.NoError(t, err)
	assert.Zero(t, result.Confidence)
	assert.Contains(t, result.Failures, "amount is not positive")
}

func TestFinalizeMissingCurrencyIsSoft(t *testing.T) {
	store := newStore(t)
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	cand := candidate(0.95)
	cand.Currency = ""

	result, _, err := v.Finalize(context.Background(), cand, normalized("msg-4"), classification())
	require.NoError(t, err)

	// Missing currency lowers confidence but never hard-rejects
	assert.InDelta(t, 0.9, result.Confidence, 0.001)
	assert.False(t, result.NeedsReview)
}

func TestFinalizeSuppressesDuplicates(t *testing.T) {
	store := newStore(t)
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	first, _, err := v.Finalize(context.Background(), candidate(0.85), normalized("msg-5"), classification())
	require.NoError(t, err)
	assert.False(t, first.NeedsReview)

	// Same reference on the same account, hours apart, different message
	dup := candidate(0.85)
	dup.Date = first.Date.Add(3 * time.Hour)
	second, _, err := v.Finalize(context.Background(), dup, normalized("msg-6"), classification())
	require.NoError(t, err)

	assert.Zero(t, second.Confidence)
	require.NotEmpty(t, second.Failures)
	assert.Contains(t, second.Failures[0], "duplicate of result "+first.ID)
}

func TestFinalizeReprocessedMessageIsDuplicate(t *testing.T) {
	store := newStore(t)
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	cand := candidate(0.85)
	cand.Reference = ""
	first, _, err := v.Finalize(context.Background(), cand, normalized("msg-7"), classification())
	require.NoError(t, err)

	again := candidate(0.85)
	again.Reference = ""
	second, _, err := v.Finalize(context.Background(), again, normalized("msg-7"), classification())
	require.NoError(t, err)

	assert.Zero(t, second.Confidence)
	assert.Contains(t, second.Failures[0], "duplicate of result "+first.ID)
}

func TestFinalizeEmitsReinforceEvent(t *testing.T) {
	store := newStore(t)
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	templateID := int64(7)
	cand := candidate(0.95)
	cand.TemplateID = &templateID

	_, events, err := v.Finalize(context.Background(), cand, normalized("msg-8"), classification())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, service.EventTemplateReinforce, events[0].Kind)
	assert.Equal(t, templateID, *events[0].TemplateID)
}

func TestFinalizeEmitsReviewEvent(t *testing.T) {
	store := newStore(t)
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	result, events, err := v.Finalize(context.Background(), candidate(0.6), normalized("msg-9"), classification())
	require.NoError(t, err)

	assert.True(t, result.NeedsReview)
	require.Len(t, events, 1)
	assert.Equal(t, service.EventNeedsReview, events[0].Kind)
}

// flakyStore simulates a store whose read paths fail while writes still
// succeed, as happens under disk pressure with a warm page cache.
type flakyStore struct {
	*storage.SQLiteStore
	duplicateErr error
	historyErr   error
}

func (s *flakyStore) FindDuplicate(ctx context.Context, accountID, messageID, reference string, around time.Time, window time.Duration) (*model.ExtractionResult, error) {
	if s.duplicateErr != nil {
		return nil, s.duplicateErr
	}
	return s.SQLiteStore.FindDuplicate(ctx, accountID, messageID, reference, around, window)
}

func (s *flakyStore) AmountHistory(ctx context.Context, institution string, family model.Family, limit int) ([]decimal.Decimal, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.SQLiteStore.AmountHistory(ctx, institution, family, limit)
}

func TestFinalizeDuplicateLookupFailureRoutesToReview(t *testing.T) {
	store := &flakyStore{
		SQLiteStore:  newStore(t),
		duplicateErr: errors.New("disk I/O error"),
	}
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	result, _, err := v.Finalize(context.Background(), candidate(0.95), normalized("msg-flaky"), classification())
	require.NoError(t, err)

	// An unanswerable duplicate check must never pass clean
	assert.True(t, result.NeedsReview)
	assert.InDelta(t, 0.5, result.Confidence, 0.001)
	assert.Contains(t, result.Failures, "duplicate check unavailable")
}

func TestFinalizeAmountHistoryFailureAbstains(t *testing.T) {
	store := &flakyStore{
		SQLiteStore: newStore(t),
		historyErr:  errors.New("disk I/O error"),
	}
	v := validate.NewValidator(store, validate.DefaultConfig(), nil)

	result, _, err := v.Finalize(context.Background(), candidate(0.85), normalized("msg-flaky-2"), classification())
	require.NoError(t, err)

	// The statistical check abstains on lookup failure
	assert.Equal(t, 0.85, result.Confidence)
	assert.False(t, result.NeedsReview)
}

func TestStatisticalOutlierDowngradesButNeverRejects(t *testing.T) {
	store := newStore(t)
	cfg := validate.DefaultConfig()
	v := validate.NewValidator(store, cfg, nil)

	// Build a tight history of ~45.20 purchases
	for i := 0; i < 12; i++ {
		c := candidate(0.9)
		c.Reference = ""
		c.Amount = decimal.RequireFromString("45.20").Add(decimal.New(int64(i), -2))
		_, _, err := v.Finalize(context.Background(), c, normalized("hist-"+string(rune('a'+i))), classification())
		require.NoError(t, err)
	}

	outlier := candidate(0.9)
	outlier.Reference = "REF-OUTLIER"
	outlier.Amount = decimal.RequireFromString("9800.00")

	result, _, err := v.Finalize(context.Background(), outlier, normalized("msg-out"), classification())
	require.NoError(t, err)

	assert.Less(t, result.Confidence, 0.9)
	assert.GreaterOrEqual(t, result.Confidence, 0.5)
	assert.True(t, result.NeedsReview)
}
