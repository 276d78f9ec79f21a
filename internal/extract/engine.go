// Package extract implements the tiered extraction engine: four strategies
// tried in strict cost-ascending order, each a tagged variant with the same
// input/output contract. Tier transition is one-directional within a single
// processing attempt.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sievefin/sift/internal/common"
	"github.com/sievefin/sift/internal/guard"
	"github.com/sievefin/sift/internal/llm"
	"github.com/sievefin/sift/internal/model"
	"github.com/sievefin/sift/internal/normalize"
	"github.com/sievefin/sift/internal/service"
)

// ErrNotFinancial marks messages whose transaction likelihood is too low to
// warrant extraction at all.
var ErrNotFinancial = errors.New("message is not a financial notification")

// SynthesisOutcome records what happened to a synthesis attempt, for the
// audit trail.
type SynthesisOutcome string

// Synthesis outcomes.
const (
	SynthesisNone     SynthesisOutcome = ""
	SynthesisAccepted SynthesisOutcome = "accepted"
	SynthesisRejected SynthesisOutcome = "rejected"
)

// Attempt is the timing and cost record for one tier run, kept regardless
// of acceptance.
type Attempt struct {
	Tier     model.Tier
	Duration time.Duration
	Cost     float64
	Accepted bool
	Detail   string
}

// Candidate is a structured extraction candidate before validation.
type Candidate struct {
	Date       time.Time
	Amount     decimal.Decimal
	Currency   string
	Merchant   string
	Location   string
	Reference  string
	Attempts   []Attempt
	TemplateID *int64
	Synthesis  SynthesisOutcome
	Tier       model.Tier
	Confidence float64
	Cost       float64
	Duration   time.Duration
}

// Config holds the externally tunable extraction parameters.
type Config struct {
	// TierThresholds maps each tier to its acceptance-confidence threshold.
	TierThresholds map[model.Tier]float64
	// TemplateMinConfidence gates tier-1 eligibility.
	TemplateMinConfidence float64
	// LikelihoodThreshold below which unidentified messages are discarded
	// as non-financial.
	LikelihoodThreshold float64
	// FuzzyPenalty is subtracted when a near-match template is borrowed.
	FuzzyPenalty float64
	// MaxLLMInput bounds model prompt size in bytes.
	MaxLLMInput int
}

// DefaultConfig returns the default extraction configuration. All values
// are tunable defaults, not invariants.
func DefaultConfig() Config {
	return Config{
		TierThresholds: map[model.Tier]float64{
			model.TierTemplate:   0.8,
			model.TierStructural: 0.8,
			model.TierSynthesis:  0.7,
			model.TierDiscovery:  0.0, // discovery output is terminal
		},
		TemplateMinConfidence: 0.8,
		LikelihoodThreshold:   0.35,
		FuzzyPenalty:          0.1,
		MaxLLMInput:           8192,
	}
}

// Inferrer is the bounded model front end the engine escalates to.
type Inferrer interface {
	ProposeRules(ctx context.Context, prompt string) (llm.ProposalResponse, error)
	ExtractFields(ctx context.Context, prompt string) (llm.ExtractionResponse, error)
}

// Engine runs the tier ladder for one message at a time. Safe for
// concurrent use across messages.
type Engine struct {
	store    service.Store
	inferrer Inferrer
	guard    *guard.Guard
	logger   *slog.Logger
	cfg      Config
}

// NewEngine creates a tiered extraction engine.
func NewEngine(store service.Store, inferrer Inferrer, g *guard.Guard, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TierThresholds == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		store:    store,
		inferrer: inferrer,
		guard:    g,
		logger:   logger,
		cfg:      cfg,
	}
}

// tierFunc is the common contract every tier implements. A nil candidate
// with a nil error means the tier's precondition failed or it produced
// nothing usable; the engine escalates.
type tierFunc func(ctx context.Context, run *run) (*Candidate, error)

type run struct {
	normalized *normalize.Normalized
	cls        model.Classification
	attempts   []Attempt
	synthesis  SynthesisOutcome
}

// Extract runs the tier ladder. It stops at the first tier whose candidate
// confidence meets that tier's acceptance threshold; lower tiers are never
// retried after a higher tier has run.
func (e *Engine) Extract(ctx context.Context, n *normalize.Normalized, cls model.Classification) (*Candidate, error) {
	if cls.Unresolved() && cls.TransactionLikelihood < e.cfg.LikelihoodThreshold {
		return nil, ErrNotFinancial
	}

	r := &run{normalized: n, cls: cls}

	ladder := []struct {
		fn   tierFunc
		tier model.Tier
	}{
		{e.tierTemplate, model.TierTemplate},
		{e.tierStructural, model.TierStructural},
		{e.tierSynthesis, model.TierSynthesis},
		{e.tierDiscovery, model.TierDiscovery},
	}

	var best *Candidate
	for _, rung := range ladder {
		start := time.Now()
		cand, err := rung.fn(ctx, r)
		elapsed := time.Since(start)

		attempt := Attempt{Tier: rung.tier, Duration: elapsed}
		if err != nil {
			attempt.Detail = err.Error()
			e.logger.Debug("extraction tier failed",
				"tier", rung.tier.String(),
				"message_id", n.Message.ProviderID,
				"error", err)
		}
		if cand != nil {
			cand.Tier = rung.tier
			cand.Duration = elapsed
			attempt.Cost = cand.Cost
			attempt.Accepted = cand.Confidence >= e.cfg.TierThresholds[rung.tier]
		}
		r.attempts = append(r.attempts, attempt)

		if cand == nil {
			continue
		}

		if best == nil || cand.Confidence > best.Confidence {
			best = cand
		}
		if attempt.Accepted {
			break
		}
	}

	if best == nil {
		return nil, fmt.Errorf("%w: message %s", common.ErrExtractionExhausted, n.Message.ProviderID)
	}

	best.Attempts = r.attempts
	best.Synthesis = r.synthesis

	// Attribute the full run's inference spend, not just the winning tier's
	total := 0.0
	for _, a := range r.attempts {
		total += a.Cost
	}
	best.Cost = total

	return best, nil
}
