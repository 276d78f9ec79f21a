// Package validate finalizes extraction candidates. Three independent
// checks run per candidate and combine by taking the minimum confidence:
// one failing check is enough to demote a result, never enough to crash it.
package validate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sievefin/sift/internal/extract"
	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
	"github.com/sievefin/sift/internal/service"
)

// Config holds the externally tunable validation parameters. All values are
// configurable defaults, not invariants.
type Config struct {
	// AmountBands caps plausible magnitudes per family.
	AmountBands map[model.Family]decimal.Decimal
	// ReviewThreshold below which results route to human review.
	ReviewThreshold float64
	// ReinforceThreshold at or above which template successes are recorded.
	ReinforceThreshold float64
	// OutlierCutoff is the modified z-score beyond which amounts look
	// anomalous.
	OutlierCutoff float64
	// MinHistory is the sample size below which the statistical check
	// abstains.
	MinHistory int
	// MaxAge rejects implausibly old transaction dates.
	MaxAge time.Duration
	// DuplicateWindow bounds the reference-collision lookback.
	DuplicateWindow time.Duration
}

// DefaultConfig returns the default validation configuration.
func DefaultConfig() Config {
	bands := map[model.Family]decimal.Decimal{
		model.FamilyPurchase: decimal.NewFromInt(10_000_000),
		model.FamilyTransfer: decimal.NewFromInt(100_000_000),
		model.FamilyATM:      decimal.NewFromInt(5_000_000),
		model.FamilyPayment:  decimal.NewFromInt(50_000_000),
		model.FamilyDeposit:  decimal.NewFromInt(100_000_000),
		model.FamilyUnknown:  decimal.NewFromInt(100_000_000),
	}
	return Config{
		AmountBands:        bands,
		ReviewThreshold:    0.8,
		ReinforceThreshold: 0.9,
		OutlierCutoff:      3.5,
		MinHistory:         8,
		MaxAge:             365 * 24 * time.Hour,
		DuplicateWindow:    48 * time.Hour,
	}
}

var recognizedCurrencies = map[string]bool{
	"USD": true, "CRC": true, "EUR": true, "GBP": true, "MXN": true,
	"COP": true, "ARS": true, "PEN": true, "BRL": true, "CAD": true,
}

// Validator finalizes candidates into extraction results and emits learning
// events for the separate learning handler.
type Validator struct {
	store  service.Store
	logger *slog.Logger
	cfg    Config
}

// NewValidator creates a validator.
func NewValidator(store service.Store, cfg Config, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AmountBands == nil {
		cfg = DefaultConfig()
	}
	return &Validator{store: store, cfg: cfg, logger: logger}
}

// Finalize runs all checks, fixes the result's confidence, and returns the
// learning events the finalization produced. The result is immutable once
// returned; corrections supersede it rather than mutating it.
func (v *Validator) Finalize(ctx context.Context, cand *extract.Candidate, n *normalize.Normalized, cls model.Classification) (*model.ExtractionResult, []service.LearningEvent, error) {
	result := &model.ExtractionResult{
		ID:          uuid.NewString(),
		MessageID:   n.Message.ProviderID,
		AccountID:   n.Message.AccountID,
		Institution: cls.Institution,
		Family:      cls.Family,
		Amount:      cand.Amount,
		Currency:    cand.Currency,
		Date:        cand.Date,
		Merchant:    cand.Merchant,
		Location:    cand.Location,
		Reference:   cand.Reference,
		TemplateID:  cand.TemplateID,
		Tier:        cand.Tier,
		Cost:        cand.Cost,
		Duration:    cand.Duration,
		CreatedAt:   time.Now(),
	}

	confidence := cand.Confidence
	var failures []string

	if c, fails := v.businessCheck(cand, cls); c < confidence {
		confidence = c
		failures = append(failures, fails...)
	} else {
		failures = append(failures, fails...)
	}

	if c, fail := v.statisticalCheck(ctx, cand, cls); c < confidence {
		confidence = c
		if fail != "" {
			failures = append(failures, fail)
		}
	}

	if c, fail := v.duplicateCheck(ctx, cand, n); c < confidence {
		confidence = c
		if fail != "" {
			failures = append(failures, fail)
		}
	}

	result.Confidence = confidence
	result.Failures = failures
	result.NeedsReview = confidence < v.cfg.ReviewThreshold

	events := v.emit(result, failures)

	if err := v.store.SaveResult(ctx, result); err != nil {
		return nil, nil, fmt.Errorf("failed to save result: %w", err)
	}

	return result, events, nil
}

// emit converts the finalized result into discrete learning events. The
// learning handler consumes them independently; nothing here runs inline
// with extraction.
func (v *Validator) emit(result *model.ExtractionResult, failures []string) []service.LearningEvent {
	var events []service.LearningEvent

	if result.TemplateID != nil {
		switch {
		case result.Confidence >= v.cfg.ReinforceThreshold:
			events = append(events, service.LearningEvent{
				Kind:       service.EventTemplateReinforce,
				Result:     result,
				TemplateID: result.TemplateID,
			})
		case result.Confidence == 0:
			events = append(events, service.LearningEvent{
				Kind:       service.EventTemplateFailure,
				Result:     result,
				TemplateID: result.TemplateID,
			})
		}
	}

	if result.NeedsReview {
		events = append(events, service.LearningEvent{
			Kind:     service.EventNeedsReview,
			Result:   result,
			Failures: failures,
		})
	}

	return events
}

// businessCheck verifies amount positivity and magnitude, date plausibility,
// and currency recognition.
func (v *Validator) businessCheck(cand *extract.Candidate, cls model.Classification) (float64, []string) {
	confidence := 1.0
	var failures []string

	if !cand.Amount.IsPositive() {
		return 0, []string{"amount is not positive"}
	}

	band, ok := v.cfg.AmountBands[cls.Family]
	if !ok {
		band = v.cfg.AmountBands[model.FamilyUnknown]
	}
	if cand.Amount.GreaterThan(band) {
		confidence = 0
		failures = append(failures, fmt.Sprintf("amount %s exceeds plausible band for %s", cand.Amount, cls.Family))
	}

	now := time.Now()
	if cand.Date.After(now.Add(24 * time.Hour)) {
		confidence = 0
		failures = append(failures, "transaction date is in the future")
	}
	if cand.Date.Before(now.Add(-v.cfg.MaxAge)) {
		confidence = 0
		failures = append(failures, "transaction date is implausibly old")
	}

	if cand.Currency == "" {
		if confidence > 0.9 {
			confidence = 0.9
		}
		failures = append(failures, "no currency detected")
	} else if !recognizedCurrencies[cand.Currency] {
		confidence = 0
		failures = append(failures, fmt.Sprintf("unrecognized currency %q", cand.Currency))
	}

	return confidence, failures
}

// statisticalCheck compares the amount against the historical distribution
// for the same institution+family using a modified z-score. Large
// deviations lower confidence rather than hard-rejecting: legitimate large
// transactions occur.
func (v *Validator) statisticalCheck(ctx context.Context, cand *extract.Candidate, cls model.Classification) (float64, string) {
	if cls.Institution == "" {
		return 1.0, ""
	}

	history, err := v.store.AmountHistory(ctx, cls.Institution, cls.Family, 200)
	if err != nil {
		// Abstain: this check only downgrades, it never gates acceptance
		v.logger.Error("amount history lookup failed",
			"institution", cls.Institution,
			"family", cls.Family,
			"error", err)
		return 1.0, ""
	}
	if len(history) < v.cfg.MinHistory {
		return 1.0, ""
	}

	z := modifiedZScore(cand.Amount, history)
	if z <= v.cfg.OutlierCutoff {
		return 1.0, ""
	}

	// Scale down toward a floor, never below 0.5
	downgrade := 1.0 - (z-v.cfg.OutlierCutoff)*0.05
	if downgrade < 0.5 {
		downgrade = 0.5
	}
	return downgrade, fmt.Sprintf("amount is a statistical outlier (z=%.1f)", z)
}

// duplicateCheck suppresses reference collisions within the configured
// window. Duplicate ingestion is a known failure mode of polling-based
// message retrieval.
func (v *Validator) duplicateCheck(ctx context.Context, cand *extract.Candidate, n *normalize.Normalized) (float64, string) {
	existing, err := v.store.FindDuplicate(ctx,
		n.Message.AccountID,
		n.Message.ProviderID,
		cand.Reference,
		cand.Date,
		v.cfg.DuplicateWindow)
	if err != nil {
		// Passing clean here could double-ingest, so route to review
		// instead
		v.logger.Error("duplicate lookup failed",
			"message_id", n.Message.ProviderID,
			"error", err)
		return 0.5, "duplicate check unavailable"
	}
	if existing == nil {
		return 1.0, ""
	}
	return 0, fmt.Sprintf("duplicate of result %s", existing.ID)
}

// modifiedZScore computes 0.6745*(x-median)/MAD over the history.
func modifiedZScore(amount decimal.Decimal, history []decimal.Decimal) float64 {
	values := make([]float64, len(history))
	for i, d := range history {
		values[i], _ = d.Float64()
	}
	sort.Float64s(values)
	med := median(values)

	deviations := make([]float64, len(values))
	for i, x := range values {
		deviations[i] = abs(x - med)
	}
	sort.Float64s(deviations)
	mad := median(deviations)
	if mad == 0 {
		return 0
	}

	x, _ := amount.Float64()
	return abs(0.6745 * (x - med) / mad)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
