package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier identifies one of the four extraction strategies, ordered by cost.
type Tier int

// Extraction tiers, cheapest first.
const (
	TierTemplate   Tier = 1 // direct application of a validated template
	TierStructural Tier = 2 // structural selectors with pattern fallback
	TierSynthesis  Tier = 3 // model-assisted rule synthesis, applied locally
	TierDiscovery  Tier = 4 // direct model structured-field extraction
)

func (t Tier) String() string {
	switch t {
	case TierTemplate:
		return "template"
	case TierStructural:
		return "structural"
	case TierSynthesis:
		return "synthesis"
	case TierDiscovery:
		return "discovery"
	default:
		return "unknown"
	}
}

// ExtractionResult is the structured record produced for one message on one
// processing attempt. Once validation finalizes it the record is immutable;
// corrections supersede it with a new record rather than mutating it.
type ExtractionResult struct {
	Date         time.Time
	CreatedAt    time.Time
	Amount       decimal.Decimal
	ID           string
	MessageID    string
	AccountID    string
	Institution  string
	Currency     string
	Merchant     string
	Location     string
	Reference    string
	SupersededBy string
	Failures     []string // validation failures that triggered review
	Family       Family
	TemplateID   *int64
	Duration     time.Duration
	Tier         Tier
	Confidence   float64
	Cost         float64 // estimated inference cost in USD
	NeedsReview  bool
}

// ProcessingMetric records per-message strategy, latency, cost, and outcome
// for tuning and auditing.
type ProcessingMetric struct {
	CreatedAt   time.Time
	MessageID   string
	Institution string
	Outcome     string
	Family      Family
	Tier        Tier
	Duration    time.Duration
	Cost        float64
	Confidence  float64
}

// Metric outcomes.
const (
	OutcomeAccepted          = "accepted"
	OutcomeNeedsReview       = "needs_review"
	OutcomeDuplicate         = "duplicate"
	OutcomeDiscarded         = "discarded"
	OutcomeSynthesisAccepted = "synthesis_accepted"
	OutcomeSynthesisRejected = "synthesis_rejected"
)
